package config

import "strings"

const (
	servicePropertyName   = "Service"
	accessKeyPropertyName = "AccessKey"
	secretKeyPropertyName = "SecretKey"
)

// Connection is the parsed form of a connection string of the form
// "Service=<region or url>;AccessKey=<key>;SecretKey=<secret>".
type Connection struct {
	// Service is an AWS region (e.g. "us-west-2") or the http(s) URL of a
	// local SQS-compatible endpoint.
	Service   string
	AccessKey string
	SecretKey string
}

// ParseConnectionString extracts the recognized fields from s. Segments that
// are not exactly "key=value" with a non-blank value are ignored, and the
// first segment mentioning a key wins. It never fails: a missing Service is
// reported when a client is built from the result.
func ParseConnectionString(s string) Connection {
	var segments []string
	for _, p := range strings.Split(s, ";") {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return Connection{
		Service:   lookup(segments, servicePropertyName),
		AccessKey: lookup(segments, accessKeyPropertyName),
		SecretKey: lookup(segments, secretKeyPropertyName),
	}
}

func lookup(segments []string, key string) string {
	for _, seg := range segments {
		if !strings.Contains(seg, key) {
			continue
		}
		var parts []string
		for _, p := range strings.Split(seg, "=") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
			return parts[1]
		}
		// Only the first segment naming the key is considered.
		return ""
	}
	return ""
}

// IsLocal reports whether Service is a URL rather than a region name.
func (c Connection) IsLocal() bool {
	s := strings.ToLower(c.Service)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// HasStaticCredentials reports whether both halves of an explicit key pair
// were supplied.
func (c Connection) HasStaticCredentials() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}
