package hnasapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Request timeouts mirror what the HNAS API tolerates in practice: reads are
// quick, snapshot/share mutations can take a while on a loaded controller.
const (
	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
)

// apiKeyUser is the magic username selecting X-Api-Key authentication.
const apiKeyUser = "apikey"

// RealClient talks to the HNAS REST API v9 over HTTPS.
type RealClient struct {
	host     string
	username string
	password string
	baseURL  string
	http     *http.Client
}

// Connect builds a client for the given HNAS admin EVS. No request is made;
// callers are expected to probe with Server() before doing real work.
func Connect(host, username, password string, verifySSL bool) *RealClient {
	return &RealClient{
		host:     host,
		username: username,
		password: password,
		baseURL:  fmt.Sprintf("https://%s:8444/v9/storage", host),
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifySSL},
			},
		},
	}
}

func (r *RealClient) Server(ctx context.Context) (ServerInfo, error) {
	var out struct {
		FileDevices []ServerInfo `json:"fileDevices"`
	}
	if err := r.do(ctx, http.MethodGet, "/file-devices", nil, &out, readTimeout); err != nil {
		return ServerInfo{}, err
	}
	if len(out.FileDevices) == 0 {
		return ServerInfo{}, nil
	}
	return out.FileDevices[0], nil
}

func (r *RealClient) ListFilesystems(ctx context.Context) ([]Filesystem, error) {
	var out struct {
		Filesystems []Filesystem `json:"filesystems"`
	}
	if err := r.do(ctx, http.MethodGet, "/filesystems", nil, &out, readTimeout); err != nil {
		return nil, err
	}
	return out.Filesystems, nil
}

func (r *RealClient) GetFilesystem(ctx context.Context, id string) (Filesystem, error) {
	var out struct {
		Filesystem Filesystem `json:"filesystem"`
	}
	err := r.do(ctx, http.MethodGet, "/filesystems/"+url.PathEscape(id), nil, &out, readTimeout)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return Filesystem{}, &NotFoundError{Resource: "filesystem", ID: id}
	}
	if err != nil {
		return Filesystem{}, err
	}
	return out.Filesystem, nil
}

func (r *RealClient) CreateSnapshot(ctx context.Context, spec SnapshotSpec) (Snapshot, error) {
	var out struct {
		Snapshot Snapshot `json:"snapshot"`
	}
	if err := r.do(ctx, http.MethodPost, "/filesystem-snapshots", spec, &out, writeTimeout); err != nil {
		return Snapshot{}, err
	}
	return out.Snapshot, nil
}

func (r *RealClient) ListSnapshots(ctx context.Context, filesystemID, appSearchID string) ([]Snapshot, error) {
	// The v9 path wants a literal "null" when no application tag filters the
	// listing.
	if appSearchID == "" {
		appSearchID = "null"
	}
	var out struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	path := "/filesystem-snapshots/" + url.PathEscape(filesystemID) + "/" + url.PathEscape(appSearchID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out, readTimeout); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

func (r *RealClient) DeleteSnapshot(ctx context.Context, objectID string) error {
	err := r.do(ctx, http.MethodDelete, "/filesystem-snapshots/"+url.PathEscape(objectID), nil, nil, writeTimeout)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "snapshot", ID: objectID}
	}
	return err
}

// cifsSharePost is the full v9 CIFS share creation payload. Everything beyond
// name/path/filesystem is pinned to the settings Veeam needs to browse a
// read-only snapshot: no virus scan, unlimited users, snapshots visible.
type cifsSharePost struct {
	FilesystemID                       string `json:"filesystemId"`
	VirtualServerID                    string `json:"virtualServerId"`
	Name                               string `json:"name"`
	FilesystemPath                     string `json:"filesystemPath"`
	Comment                            string `json:"comment"`
	EnsurePathExists                   bool   `json:"ensurePathExists"`
	AccessConfig                       string `json:"accessConfig"`
	CacheOption                        string `json:"cacheOption"`
	ContinuouslyAvailable              bool   `json:"continuouslyAvailable"`
	EncryptedAccess                    bool   `json:"encryptedAccess"`
	IsABEEnabled                       bool   `json:"isABEEnabled"`
	IsFollowGlobalSymbolicLinks        bool   `json:"isFollowGlobalSymbolicLinks"`
	IsFollowSymbolicLinks              bool   `json:"isFollowSymbolicLinks"`
	IsForceFileNameToLowercase         bool   `json:"isForceFileNameToLowercase"`
	IsScanForVirusesEnabled            bool   `json:"isScanForVirusesEnabled"`
	MaxConcurrentUsers                 int    `json:"maxConcurrentUsers"`
	SnapshotOption                     string `json:"snapshotOption"`
	TransferToReplicationTargetSetting string `json:"transferToReplicationTargetSetting"`
	UserHomeDirectoryMode              string `json:"userHomeDirectoryMode"`
	NoDefaultSecurity                  bool   `json:"noDefaultSecurity"`
}

func (r *RealClient) CreateShare(ctx context.Context, spec ShareSpec) (Share, error) {
	body := cifsSharePost{
		FilesystemID:                       spec.FilesystemID,
		VirtualServerID:                    spec.VirtualServerID,
		Name:                               spec.Name,
		FilesystemPath:                     spec.Path,
		Comment:                            spec.Comment,
		EnsurePathExists:                   false, // the snapshot already exists
		AccessConfig:                       "",
		CacheOption:                        "MANUAL_CACHING_DOCS",
		MaxConcurrentUsers:                 -1,
		SnapshotOption:                     "SHOW_AND_ALLOW_ACCESS",
		TransferToReplicationTargetSetting: "USE_FS_DEFAULT",
		UserHomeDirectoryMode:              "OFF",
	}
	var out struct {
		FilesystemShare Share `json:"filesystemShare"`
	}
	if err := r.do(ctx, http.MethodPost, "/filesystem-shares/cifs", body, &out, writeTimeout); err != nil {
		return Share{}, err
	}
	return out.FilesystemShare, nil
}

func (r *RealClient) ListShares(ctx context.Context, virtualServerID string) ([]Share, error) {
	var out struct {
		FilesystemShares []Share `json:"filesystemShares"`
	}
	path := "/virtual-servers/" + url.PathEscape(virtualServerID) + "/cifs"
	if err := r.do(ctx, http.MethodGet, path, nil, &out, readTimeout); err != nil {
		return nil, err
	}
	return out.FilesystemShares, nil
}

func (r *RealClient) DeleteShare(ctx context.Context, objectID string) error {
	err := r.do(ctx, http.MethodDelete, "/filesystem-shares/cifs/"+url.PathEscape(objectID), nil, nil, writeTimeout)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "share", ID: objectID}
	}
	return err
}

// do performs one authenticated JSON round trip against the API.
func (r *RealClient) do(ctx context.Context, method, path string, reqBody, respBody any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if reqBody != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(reqBody); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.username == apiKeyUser {
		req.Header.Set("X-Api-Key", r.password)
	} else {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return &ConnectionError{Host: r.host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return errors.Wrapf(err, "decoding %s %s response", method, path)
		}
	}
	return nil
}
