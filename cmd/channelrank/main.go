// Command channelrank is the entry point of the channel ranking scraper.
package main

import (
	"github.com/JakeFAU/creator-rank-crawler/cmd"
)

func main() {
	cmd.Execute()
}
