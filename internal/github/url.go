package github

import (
	"fmt"
	"regexp"
	"strconv"
)

var prURLRegex = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)/?$`)

// ParsePullRequestURL extracts owner, repo, and PR number from a pull request
// URL like https://github.com/owner/repo/pull/123.
func ParsePullRequestURL(prURL string) (owner, repo string, number int, err error) {
	m := prURLRegex.FindStringSubmatch(prURL)
	if m == nil {
		return "", "", 0, fmt.Errorf("not a pull request URL: %s", prURL)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("invalid pull request number in URL: %s", prURL)
	}
	return m[1], m[2], number, nil
}
