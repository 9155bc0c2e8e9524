package fetch

import (
	"net/url"
	"strings"
)

// Platform is a known blogging or publishing host.
type Platform string

const (
	// PlatformWordPress covers self-hosted and wordpress.com sites
	PlatformWordPress Platform = "wordpress"
	// PlatformNote is note.com
	PlatformNote Platform = "note"
	// PlatformMedium is medium.com and its custom domains
	PlatformMedium Platform = "medium"
	// PlatformHatena is Hatena Blog
	PlatformHatena Platform = "hatena"
	// PlatformUnknown is an unrecognized host
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the publishing platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Host)
	switch {
	case host == "note.com" || strings.HasSuffix(host, ".note.com") || host == "note.mu":
		return PlatformNote
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
		return PlatformMedium
	case strings.Contains(host, "hatenablog.") || strings.HasSuffix(host, ".hateblo.jp") || strings.HasSuffix(host, ".hatenadiary.jp"):
		return PlatformHatena
	case strings.HasSuffix(host, ".wordpress.com") || strings.Contains(parsed.Path, "/wp-content/"):
		return PlatformWordPress
	}
	return PlatformUnknown
}

// PlatformContentSelectors returns content selectors optimized for a specific platform.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformNote:
		return []string{".note-common-styles__textnote-body", ".o-noteContentText", "article"}
	case PlatformMedium:
		return []string{"article section", "article"}
	case PlatformHatena:
		return []string{".entry-content", ".hatenablog-entry", "article"}
	case PlatformWordPress:
		return []string{".entry-content", ".post-content", "article", "main"}
	default:
		return ArticleSelectors()
	}
}

// PlatformNoiseSelectors returns noise exclusion selectors for a specific platform.
func PlatformNoiseSelectors(platform Platform) []string {
	common := []string{
		".social-share",
		".share-buttons",
		".social-links",
		".related-posts",
		".comments",
		"#comments",
		".cookie-consent",
		".gdpr-notice",
		".toc",
		"#toc",
	}

	switch platform {
	case PlatformNote:
		return append(common, ".o-noteLikeV3", ".m-creatorInfo", ".o-noteFollowingButton")
	case PlatformMedium:
		return append(common, ".pw-multi-vote-count", "[data-testid='headerClapButton']")
	case PlatformHatena:
		return append(common, ".hatena-star-container", ".entry-footer", ".hatena-module")
	case PlatformWordPress:
		return append(common, ".sharedaddy", ".jp-relatedposts", ".wp-block-buttons")
	default:
		return common
	}
}
