package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/netx"
	"github.com/goccy/go-json"
)

const (
	DefaultAPIURL    = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
	DefaultFileName  = "discshelf.json"

	appDataFolder = "appDataFolder"
	fileFields    = "id,modifiedTime"
)

// quotaReasons are the 403 error reasons that mean "slow down" rather than
// "not allowed".
var quotaReasons = []string{"rateLimitExceeded", "userRateLimitExceeded", "storageQuotaExceeded", "dailyLimitExceeded"}

type driveFile struct {
	ID           string    `json:"id"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type fileList struct {
	Files []driveFile `json:"files"`
}

type driveRevision struct {
	ID           string    `json:"id"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         string    `json:"size"`
}

type revisionList struct {
	Revisions []driveRevision `json:"revisions"`
}

// driveClient speaks the subset of the Drive v3 REST API the adapter needs.
// The http client is expected to attach credentials.
type driveClient struct {
	http      *http.Client
	apiURL    string
	uploadURL string
	fileName  string
}

func (d *driveClient) do(ctx context.Context, method, u string, body []byte, contentType string) ([]byte, error) {
	var r io.Reader
	header := http.Header{}
	if body != nil {
		r = bytes.NewReader(body)
		header.Set("Content-Type", contentType)
	}
	req, err := netx.NewRequest(ctx, method, u, r, header)
	if err != nil {
		return nil, err
	}
	data, _, err := netx.Do(d.http, req)
	if err != nil {
		return nil, mapDriveError(err)
	}
	return data, nil
}

func (d *driveClient) getJSON(ctx context.Context, u string, out any) error {
	data, err := d.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}
	return nil
}

// find looks the document up by name in the application data folder.
// It returns nil when the file does not exist.
func (d *driveClient) find(ctx context.Context) (*driveFile, error) {
	q := url.Values{}
	q.Set("spaces", appDataFolder)
	q.Set("q", fmt.Sprintf("name='%s' and trashed=false", d.fileName))
	q.Set("fields", "files("+fileFields+")")

	var list fileList
	if err := d.getJSON(ctx, d.apiURL+"/files?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return &list.Files[0], nil
}

func (d *driveClient) create(ctx context.Context) (*driveFile, error) {
	meta, err := json.Marshal(map[string]any{
		"name":     d.fileName,
		"parents":  []string{appDataFolder},
		"mimeType": common.DocumentContentType,
	})
	if err != nil {
		return nil, err
	}
	data, err := d.do(ctx, http.MethodPost, d.apiURL+"/files?fields="+fileFields, meta, common.DocumentContentType)
	if err != nil {
		return nil, err
	}
	var f driveFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("%w: created file has no id", common.ErrMalformedRemote)
	}
	return &f, nil
}

func (d *driveClient) metadata(ctx context.Context, id string) (*driveFile, error) {
	var f driveFile
	if err := d.getJSON(ctx, d.apiURL+"/files/"+url.PathEscape(id)+"?fields="+fileFields, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (d *driveClient) download(ctx context.Context, id string) ([]byte, error) {
	return d.do(ctx, http.MethodGet, d.apiURL+"/files/"+url.PathEscape(id)+"?alt=media", nil, "")
}

func (d *driveClient) upload(ctx context.Context, id string, content []byte) (*driveFile, error) {
	u := d.uploadURL + "/files/" + url.PathEscape(id) + "?uploadType=media&fields=" + fileFields
	data, err := d.do(ctx, http.MethodPatch, u, content, common.DocumentContentType)
	if err != nil {
		return nil, err
	}
	var f driveFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}
	return &f, nil
}

func (d *driveClient) revisions(ctx context.Context, id string) ([]driveRevision, error) {
	u := d.apiURL + "/files/" + url.PathEscape(id) + "/revisions?fields=revisions(id,modifiedTime,size)"
	var list revisionList
	if err := d.getJSON(ctx, u, &list); err != nil {
		return nil, err
	}
	return list.Revisions, nil
}

func (d *driveClient) revisionContent(ctx context.Context, id, rev string) ([]byte, error) {
	u := d.apiURL + "/files/" + url.PathEscape(id) + "/revisions/" + url.PathEscape(rev) + "?alt=media"
	return d.do(ctx, http.MethodGet, u, nil, "")
}

func (r driveRevision) size() int64 {
	n, _ := strconv.ParseInt(r.Size, 10, 64)
	return n
}

// mapDriveError turns rate limit and storage quota 403s into
// ErrQuotaExceeded. Other statuses keep the netx mapping.
func mapDriveError(err error) error {
	var se *netx.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		return err
	}
	for _, reason := range quotaReasons {
		if strings.Contains(se.Body, reason) {
			return fmt.Errorf("%w: %s", common.ErrQuotaExceeded, reason)
		}
	}
	return err
}
