package execengine

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// NextCursor extracts the next-page cursor/page token from a JSON body
// using cfg.NextExpr, returning ("", false) if absent or the expression
// is unset.
func NextCursor(body []byte, cfg PaginationConfig) (string, bool) {
	if cfg.NextExpr == "" {
		return "", false
	}
	r := gjson.GetBytes(body, cfg.NextExpr)
	if !r.Exists() || r.String() == "" {
		return "", false
	}
	return r.String(), true
}

// NextLink extracts the next page's absolute URL, per spec.md §4.9.4's
// link_header mode: linkHeader is the raw Link response header; if
// cfg.LinkExpr is set it is tried first against the JSON body (some APIs
// embed the next link in the body instead of a header).
func NextLink(body []byte, linkHeader string, cfg PaginationConfig) (string, bool) {
	if cfg.LinkExpr != "" {
		r := gjson.GetBytes(body, cfg.LinkExpr)
		if r.Exists() && r.String() != "" {
			return r.String(), true
		}
	}
	return parseLinkHeaderNext(linkHeader)
}

// ShouldStop reports whether cfg.StopExpr evaluates truthy against body.
func ShouldStop(body []byte, cfg PaginationConfig) bool {
	if cfg.StopExpr == "" {
		return false
	}
	r := gjson.GetBytes(body, cfg.StopExpr)
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	default:
		return r.String() != ""
	}
}

// ExtractItems pulls the current page's item array out of body using
// cfg.ItemsExpr, returning one []any per call so pages can be
// concatenated by the caller.
func ExtractItems(body []byte, cfg PaginationConfig) []any {
	if cfg.ItemsExpr == "" {
		return nil
	}
	r := gjson.GetBytes(body, cfg.ItemsExpr)
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = v.Value()
	}
	return out
}

// parseLinkHeaderNext extracts the rel="next" target from an RFC 5988
// Link header, e.g. `<https://api.example.com/x?page=2>; rel="next"`.
func parseLinkHeaderNext(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		lt, gt := strings.IndexByte(part, '<'), strings.IndexByte(part, '>')
		if lt < 0 || gt < 0 || gt < lt {
			continue
		}
		url := part[lt+1 : gt]
		rel := ""
		for _, seg := range strings.Split(part[gt+1:], ";") {
			seg = strings.TrimSpace(seg)
			if after, ok := strings.CutPrefix(seg, "rel="); ok {
				rel = strings.Trim(after, `"`)
			}
		}
		if rel == "next" && url != "" {
			return url, true
		}
	}
	return "", false
}

// nextPageNumber advances a numeric page counter by one; "page"
// pagination mode uses it for every next page and does not consult
// next_expr.
func nextPageNumber(current string) int {
	n, err := strconv.Atoi(current)
	if err != nil {
		return 1
	}
	return n + 1
}
