package docstore

import (
	"net/url"

	"github.com/dharsanguruparan/attachvault/internal/model"
)

// DownloadURL resolves the URL bytes are downloaded from. A provided URL is
// preferred, resolved against the service base when relative; otherwise the
// URL is built from the document id.
func (c *Client) DownloadURL(id, provided string) (string, error) {
	return c.resolve(id, provided, "download")
}

// ViewURL resolves the inline-rendering URL the same way as DownloadURL.
func (c *Client) ViewURL(id, provided string) (string, error) {
	return c.resolve(id, provided, "view")
}

func (c *Client) resolve(id, provided, action string) (string, error) {
	if provided != "" {
		ref, err := url.Parse(provided)
		if err != nil {
			return "", model.Wrap(model.KindValidation, action+" url", err)
		}
		if ref.IsAbs() {
			return ref.String(), nil
		}
		return c.baseURL.ResolveReference(ref).String(), nil
	}
	if id == "" {
		return "", model.Errorf(model.KindValidation, action+" url", "document id or url is required")
	}
	return c.endpoint("documents", id, action), nil
}
