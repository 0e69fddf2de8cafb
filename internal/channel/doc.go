// Package channel defines the canonical dataset types shared by the
// acquisition, persistence, enrichment and analytics subsystems, together
// with the collaborator interfaces they depend on.
package channel
