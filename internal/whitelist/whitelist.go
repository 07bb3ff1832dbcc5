package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker provides functionality to check if email domains are whitelisted
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	// Normalize domains (lowercase, no leading @ or dot)
	normalizedDomains := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), "@.")
		if domain != "" {
			normalizedDomains = append(normalizedDomains, domain)
		}
	}

	if len(normalizedDomains) > 0 && logger != nil {
		logger.Info("Initialized whitelist checker", zap.Strings("domains", normalizedDomains))
	}

	return &Checker{
		domains: normalizedDomains,
		logger:  logger,
	}
}

// IsWhitelisted checks if the sender's domain, or a parent domain, is in the whitelist
func (c *Checker) IsWhitelisted(from string) bool {
	if len(c.domains) == 0 {
		return false
	}

	// Extract domain from email address
	at := strings.LastIndexByte(from, '@')
	if at < 0 || at == len(from)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(from[at+1:]))

	for _, whitelisted := range c.domains {
		if domain == whitelisted || strings.HasSuffix(domain, "."+whitelisted) {
			if c.logger != nil {
				c.logger.Debug("Domain is whitelisted",
					zap.String("domain", domain),
					zap.String("email", from))
			}
			return true
		}
	}

	return false
}

// Domains returns the normalized whitelist
func (c *Checker) Domains() []string {
	return append([]string(nil), c.domains...)
}
