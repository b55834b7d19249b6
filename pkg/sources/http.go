package sources

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/httputil"
)

const userAgent = "skillgarden"

// getWithRetry downloads url, retrying transport failures and 5xx answers
func getWithRetry(ctx context.Context, client *http.Client, url, accept string, cfg config.RetryConfig) ([]byte, error) {
	var body []byte
	get := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return httputil.Unrecoverable(err)
		}
		req.Header.Set("User-Agent", userAgent)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &httputil.StatusError{StatusCode: resp.StatusCode, URL: url}
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	err := httputil.Retry(ctx, cfg, "registry request", get, httputil.WithLogFields(logrus.Fields{"url": url}))
	return body, err
}
