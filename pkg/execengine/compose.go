package execengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// substitutePathParams replaces "{name}" tokens in rawURL with the
// corresponding path param, URL-escaping the value.
func substitutePathParams(rawURL string, params map[string]string) (string, error) {
	var missing []string
	result := rawURL
	for {
		start := strings.IndexByte(result, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(result[start:], '}')
		if end < 0 {
			break
		}
		end += start
		name := result[start+1 : end]
		val, ok := params[name]
		if !ok {
			missing = append(missing, name)
			result = result[:start] + result[end+1:]
			continue
		}
		result = result[:start] + url.PathEscape(val) + result[end+1:]
	}
	if len(missing) > 0 {
		return "", apperrors.Newf(apperrors.KindInvalidArguments, "missing path params: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

func mergeValues(defaults, overrides map[string][]string, multiValue map[string]bool) map[string][]string {
	out := make(map[string][]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range overrides {
		if multiValue[k] {
			out[k] = append(out[k], v...)
		} else {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

func stripHeaders(headers map[string][]string, denied, reserved []string) map[string][]string {
	drop := make(map[string]bool, len(denied)+len(reserved))
	for _, h := range denied {
		drop[strings.ToLower(h)] = true
	}
	for _, h := range reserved {
		drop[strings.ToLower(h)] = true
	}
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		if drop[strings.ToLower(k)] {
			continue
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// ComposeRequest builds an *http.Request from cfg and per-call input,
// applying the override, stripping, and auth-injection rules of
// spec.md §4.9.2. accessToken is only consulted when cfg.Auth.Kind is
// AuthOAuth.
func ComposeRequest(ctx context.Context, cfg HTTPActionConfig, in Input, accessToken string) (*http.Request, error) {
	rawURL, err := substitutePathParams(cfg.URL, in.PathParams)
	if err != nil {
		return nil, err
	}

	query := mergeValues(cfg.Query, in.Query, cfg.MultiValueQuery)
	headers := stripHeaders(mergeValues(cfg.Headers, in.Headers, cfg.MultiValueHeaders), cfg.DeniedHeaders, cfg.ReservedHeaders)

	body := in.Body
	if body == nil {
		body = cfg.Body
	}

	var bodyReader io.Reader
	var contentType string
	switch {
	case in.Multipart != nil:
		bodyReader, contentType, err = encodeMultipart(in.Multipart)
		if err != nil {
			return nil, err
		}
	case cfg.BodyEncoding == "form":
		bodyReader = strings.NewReader(encodeFormURLEncoded(body))
		contentType = "application/x-www-form-urlencoded"
	case body != nil:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidArguments, err, "encoding request body as JSON")
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, err, "parsing action url")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, u.String(), bodyReader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, err, "building http request")
	}

	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := injectAuth(req, cfg.Auth, accessToken); err != nil {
		return nil, err
	}

	return req, nil
}

func injectAuth(req *http.Request, auth AuthConfig, accessToken string) error {
	switch auth.Kind {
	case AuthNone, "":
		return nil
	case AuthAPIKey:
		if strings.EqualFold(auth.HeaderIn, "query") {
			q := req.URL.Query()
			q.Set(auth.HeaderName, auth.StaticKey)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		req.Header.Set(auth.HeaderName, auth.StaticKey)
		return nil
	case AuthBasic:
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth.Username+":"+auth.Password)))
		return nil
	case AuthOAuth:
		if accessToken == "" {
			return apperrors.New(apperrors.KindAuthError, "oauth action requires an access token but none was supplied")
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return nil
	default:
		return apperrors.Newf(apperrors.KindInvalidArguments, "unknown auth kind %q", auth.Kind)
	}
}

func encodeMultipart(m *MultipartInput) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fieldNames := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		fieldNames = append(fieldNames, k)
	}
	sort.Strings(fieldNames)
	for _, k := range fieldNames {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, "", apperrors.Wrap(apperrors.KindInternal, err, "writing multipart field")
		}
	}

	fileNames := make([]string, 0, len(m.Files))
	for k := range m.Files {
		fileNames = append(fileNames, k)
	}
	sort.Strings(fileNames)
	for _, field := range fileNames {
		path := m.Files[field]
		f, err := os.Open(path)
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.KindInvalidArguments, err, fmt.Sprintf("opening multipart file for field %q", field))
		}
		part, err := w.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			f.Close()
			return nil, "", apperrors.Wrap(apperrors.KindInternal, err, "creating multipart file part")
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, "", apperrors.Wrap(apperrors.KindInternal, err, "copying multipart file contents")
		}
		f.Close()
	}

	if err := w.Close(); err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInternal, err, "closing multipart writer")
	}
	return buf, w.FormDataContentType(), nil
}

// encodeFormURLEncoded flattens body into application/x-www-form-urlencoded
// form, using "key[subkey]" for nested objects and repeated keys for
// arrays (spec.md §4.9.2).
func encodeFormURLEncoded(body any) string {
	values := url.Values{}
	flattenForm("", body, values)
	return values.Encode()
}

func flattenForm(prefix string, v any, out url.Values) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = fmt.Sprintf("%s[%s]", prefix, k)
			}
			flattenForm(key, val[k], out)
		}
	case []any:
		for _, item := range val {
			flattenForm(prefix, item, out)
		}
	case nil:
		// omit
	default:
		out.Add(prefix, fmt.Sprintf("%v", val))
	}
}
