package content

import "regexp"

// Pattern is one regex-based secret detector entry (spec §4.2).
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Severity    float64
	Description string
}

// secretPatterns is the required minimum pattern set from spec §4.2.
// Regexes are case-sensitive unless the pattern's description says
// otherwise (the generic key/value patterns use (?i)).
var secretPatterns = []Pattern{
	{
		Name:        "aws_access_key",
		Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		Severity:    0.9,
		Description: "AWS access key ID",
	},
	{
		Name:        "aws_secret_key",
		Regex:       regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`),
		Severity:    0.9,
		Description: "AWS secret access key",
	},
	{
		Name:        "github_pat",
		Regex:       regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
		Severity:    0.9,
		Description: "GitHub personal access token",
	},
	{
		Name:        "github_oauth",
		Regex:       regexp.MustCompile(`(gho|ghu|ghs)_[A-Za-z0-9]{36}`),
		Severity:    0.8,
		Description: "GitHub OAuth/App token",
	},
	{
		Name:        "pem_private_key",
		Regex:       regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
		Severity:    0.9,
		Description: "PEM private key header",
	},
	{
		Name:        "jwt",
		Regex:       regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		Severity:    0.7,
		Description: "JWT",
	},
	{
		Name:        "slack_token",
		Regex:       regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]+`),
		Severity:    0.8,
		Description: "Slack token",
	},
	{
		Name:        "stripe_live_key",
		Regex:       regexp.MustCompile(`sk_live_[A-Za-z0-9]{16,}`),
		Severity:    0.9,
		Description: "Stripe live secret key",
	},
	{
		Name:        "generic_api_key",
		Regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}['"]?`),
		Severity:    0.5,
		Description: "generic API key assignment",
	},
	{
		Name:        "generic_password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{6,}['"]?`),
		Severity:    0.5,
		Description: "generic password assignment",
	},
	{
		Name:        "generic_secret",
		Regex:       regexp.MustCompile(`(?i)(secret|token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{12,}['"]?`),
		Severity:    0.6,
		Description: "generic secret/token assignment",
	},
	{
		Name:        "database_url",
		Regex:       regexp.MustCompile(`(?i)(database_url\s*=|[a-z]+://[^\s:]+:[^\s@]+@[^\s/]+/[^\s]+)`),
		Severity:    0.7,
		Description: "database connection string",
	},
}

// Patterns returns the configured secret pattern set.
func Patterns() []Pattern { return secretPatterns }

// FileCategory is a suspicious-file classification bucket (spec §4.2).
type FileCategory struct {
	Name            string
	RiskScore       float64
	Extensions      []string
	Basenames       []string
	RequiresKeyword bool
	Keywords        []string
}

var fileCategories = []FileCategory{
	{Name: "credentials", RiskScore: 0.8, Basenames: []string{".netrc", "credentials", ".npmrc", ".pypirc"}, Extensions: []string{".credentials"}},
	{Name: "keys", RiskScore: 0.9, Extensions: []string{".pem", ".key", ".pfx", ".p12", ".ppk"}},
	{Name: "cloud_config", RiskScore: 0.7, Basenames: []string{"terraform.tfvars", "serverless.yml"}, Extensions: []string{".tfstate"}, RequiresKeyword: true, Keywords: []string{"aws", "gcp", "azure", "cloud"}},
	{Name: "backups", RiskScore: 0.5, Extensions: []string{".bak", ".backup", ".old", ".sql.gz", ".dump"}},
	{Name: "generic_config", RiskScore: 0.4, Basenames: []string{".env", "config.yml", "config.yaml", "settings.py"}, Extensions: []string{".env", ".ini", ".conf"}},
	{Name: "docker", RiskScore: 0.3, Basenames: []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml"}},
}

// Categories returns the configured suspicious-file categories.
func Categories() []FileCategory { return fileCategories }
