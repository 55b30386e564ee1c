package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// formatParam overrides the output format and is never passed to functions.
const formatParam = "output_format"

// extractArgs collects positional arguments in the order the client wrote
// them: query parameters for GET, the body for POST. A POST without a body
// falls back to the query string.
func extractArgs(w http.ResponseWriter, r *http.Request, limit int64) (args []string, format string, err error) {
	if r.Method != http.MethodPost {
		args, format = orderedPairs(r.URL.RawQuery)
		return args, format, nil
	}

	_, queryFormat := orderedPairs(r.URL.RawQuery)
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		args, format, err = multipartArgs(r, limit)
		return args, firstNonEmpty(format, queryFormat), err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	switch {
	case len(strings.TrimSpace(string(body))) == 0:
		args, format = orderedPairs(r.URL.RawQuery)
		return args, format, nil
	case mediaType == "application/x-www-form-urlencoded":
		args, format = orderedPairs(string(body))
	default:
		args, format, err = jsonArgs(body)
		if err != nil {
			if mediaType == "application/json" {
				return nil, "", err
			}
			args, format = []string{string(body)}, ""
		}
	}
	return args, firstNonEmpty(format, queryFormat), nil
}

// orderedPairs parses a urlencoded string keeping the values in order.
// url.ParseQuery returns a map and loses it.
func orderedPairs(raw string) (values []string, format string) {
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		value = unescape(value)
		if key == formatParam {
			format = value
			continue
		}
		values = append(values, value)
	}
	return values, format
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// jsonArgs reads an object's values in document order, or an array's
// elements. Strings are passed as-is; other values as their JSON text.
func jsonArgs(body []byte) (args []string, format string, err error) {
	// The trailing newline terminates a top-level number, so hitting the
	// end of input always means the document was truncated.
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, append(bytes.TrimSpace(body), '\n'))

	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, key string) bool {
			value := jsonValue(iter)
			if key == formatParam {
				format = value
				return true
			}
			args = append(args, value)
			return true
		})
	case jsoniter.ArrayValue:
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			args = append(args, jsonValue(iter))
			return true
		})
	default:
		args = append(args, jsonValue(iter))
	}

	if iter.Error != nil {
		return nil, "", fmt.Errorf("invalid JSON body: %w", iter.Error)
	}
	// Only whitespace may follow the value: the next read must hit the end.
	if iter.WhatIsNext() != jsoniter.InvalidValue || !errors.Is(iter.Error, io.EOF) {
		return nil, "", errors.New("invalid JSON body: data after top-level value")
	}
	return args, format, nil
}

func jsonValue(iter *jsoniter.Iterator) string {
	if iter.WhatIsNext() == jsoniter.StringValue {
		return iter.ReadString()
	}
	return string(iter.SkipAndReturnBytes())
}

// multipartArgs reads form fields. Multipart parsing does not keep field
// order, so values are taken in key order.
func multipartArgs(r *http.Request, limit int64) (args []string, format string, err error) {
	if limit <= 0 {
		limit = 32 << 20
	}
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", fmt.Errorf("invalid multipart body: %w", err)
	}

	form := r.MultipartForm.Value
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == formatParam {
			if v := form[key]; len(v) > 0 {
				format = v[0]
			}
			continue
		}
		args = append(args, form[key]...)
	}
	return args, format, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
