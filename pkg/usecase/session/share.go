package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
)

// ViewParam is the query parameter carrying a shared entry
const ViewParam = "view"

// EncodeShareValue serializes entry into the percent-encoded value of the view parameter
func EncodeShareValue(entry *model.HistoryEntry) (string, error) {
	if entry == nil {
		return "", goerr.Wrap(model.ErrShareLink, "entry is nil")
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrShareLink, err), "failed to marshal entry",
			goerr.V("id", entry.ID))
	}

	return url.QueryEscape(base64.StdEncoding.EncodeToString(raw)), nil
}

// EncodeShareLink builds <origin><path>?view=<value> from baseURL. Any query or fragment
// of baseURL is dropped.
func EncodeShareLink(entry *model.HistoryEntry, baseURL string) (string, error) {
	value, err := EncodeShareValue(entry)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrShareLink, err), "invalid base URL",
			goerr.V("base_url", baseURL))
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	return u.String() + "?" + ViewParam + "=" + value, nil
}

// DecodeShareLink reverses EncodeShareValue. It accepts the raw query value as well as a
// value that was already percent-decoded once, since base64 text has no '%' and
// PathUnescape keeps '+' intact.
func DecodeShareLink(value string) (*model.HistoryEntry, error) {
	if value == "" {
		return nil, goerr.Wrap(model.ErrShareLink, "share value is empty")
	}

	unescaped, err := url.PathUnescape(value)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrShareLink, err), "failed to percent-decode share value")
	}

	raw, err := base64.StdEncoding.DecodeString(unescaped)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrShareLink, err), "failed to base64-decode share value")
	}

	entry, err := model.ParseHistoryEntry(raw)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrShareLink, err), "failed to parse shared entry")
	}

	return entry, nil
}

// ShareValueFromURL extracts the view value from a full share link
func ShareValueFromURL(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrShareLink, err), "failed to parse share link")
	}

	value := u.Query().Get(ViewParam)
	if value == "" {
		return "", goerr.Wrap(model.ErrShareLink, "share link has no view parameter")
	}
	return value, nil
}
