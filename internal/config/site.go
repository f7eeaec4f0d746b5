package config

import (
	"maps"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

// SiteConfig holds request overrides for one host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent replaces the default User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// File represents the structure of the .urlvet configuration file.
type File struct {
	// Sites maps host names to their request overrides. A key also applies
	// to every subdomain of that host unless a more specific key exists.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults is applied to every site unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Vocabulary extends the built-in detection tables.
	Vocabulary Vocabulary `yaml:"vocabulary,omitempty"`

	// Rules overrides severity or penalty of catalog rules.
	Rules map[model.RuleID]model.RuleOverride `yaml:"rules,omitempty"`
}

// GetSiteConfig returns the request configuration for host, merging the
// most specific matching site entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.lookupSite(host)
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	return result
}

// lookupSite finds the entry for host or for the closest parent domain.
func (cf *File) lookupSite(host string) (SiteConfig, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if sc, ok := cf.Sites[host]; ok {
			return sc, true
		}
		_, parent, found := strings.Cut(host, ".")
		if !found {
			break
		}
		host = parent
	}
	return SiteConfig{}, false
}

// RuleBook returns the rule catalog with the file's overrides applied.
func (cf *File) RuleBook() (*model.RuleBook, error) {
	rb := model.NewRuleBook()
	if len(cf.Rules) == 0 {
		return rb, nil
	}
	if err := rb.Apply(cf.Rules); err != nil {
		return nil, err
	}
	return rb, nil
}
