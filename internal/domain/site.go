package domain

// SiteProfile is the editorial context handed to the content generator.
type SiteProfile struct {
	Key            string
	Name           string
	Platform       string
	Categories     []string
	ContentStyle   string
	TargetAudience string
}
