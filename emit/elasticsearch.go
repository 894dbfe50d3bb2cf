package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/index"
)

// Exported errors
var (
	ErrRejected    = errors.New("document rejected by elasticsearch")
	ErrServerError = errors.New("elasticsearch server error")
)

// Elasticsearch posts each document to {URL}/{Index}/{Type}/{id}.
type Elasticsearch struct {
	URL     string
	Index   string
	Type    string
	Retries int
	Client  *http.Client

	newBackOff func() backoff.BackOff
}

var _ Emitter = &Elasticsearch{}

// NewElasticsearch returns an emitter for the index at baseURL. An empty
// typ means "_doc".
func NewElasticsearch(baseURL, indexName, typ string, retries int, timeout time.Duration) *Elasticsearch {
	if typ == "" {
		typ = "_doc"
	}
	return &Elasticsearch{
		URL:     strings.TrimSuffix(baseURL, "/"),
		Index:   indexName,
		Type:    typ,
		Retries: retries,
		Client:  &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

func (es *Elasticsearch) Name() string { return "elasticsearch" }

func (es *Elasticsearch) target(id string) string {
	return es.URL + "/" + url.PathEscape(es.Index) + "/" + url.PathEscape(es.Type) + "/" + url.PathEscape(id)
}

// Emit posts doc. Server errors and transport failures are retried with
// exponential backoff, at most Retries times. A 4xx response is not
// retried.
func (es *Elasticsearch) Emit(ctx context.Context, doc *index.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	target := es.target(doc.ID)
	var result string
	op := func() error {
		var err error
		result, err = es.post(ctx, target, body)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(es.newBackOff(), uint64(es.Retries)), ctx)
	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{"bag": doc.ID, "wait": wait}).WithError(err).Info("retrying elasticsearch")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return errors.Wrap(err, target)
	}
	logrus.WithFields(logrus.Fields{"bag": doc.ID, "result": result}).Debug("posted to elasticsearch")
	return nil
}

// post sends one request. It returns the "result" field of the response.
func (es *Elasticsearch) post(ctx context.Context, target string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := es.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 200 || resp.StatusCode == 201:
		v, err := jason.NewObjectFromReader(resp.Body)
		if err != nil {
			// the document was accepted even if the reply is odd
			return "", nil
		}
		result, _ := v.GetString("result")
		return result, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, reason(resp.Body)))
	default:
		return "", fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}
}

// reason pulls error.reason out of an elasticsearch error reply.
func reason(r io.Reader) string {
	v, err := jason.NewObjectFromReader(r)
	if err != nil {
		return "no reason given"
	}
	if s, err := v.GetString("error", "reason"); err == nil {
		return s
	}
	if s, err := v.GetString("error"); err == nil {
		return s
	}
	return "no reason given"
}

func (es *Elasticsearch) Close() error {
	es.Client.CloseIdleConnections()
	return nil
}
