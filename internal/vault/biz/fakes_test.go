package biz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func cloneFile(f *File) *File {
	c := *f
	c.Tags = slices.Clone(f.Tags)
	return &c
}

func fileKey(fileID, ownerID string) string { return fileID + "|" + ownerID }

type fakeFiles struct {
	mu    sync.Mutex
	files map[string]*File

	getErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string]*File)}
}

func (r *fakeFiles) Create(_ context.Context, f *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := fileKey(f.ID, f.OwnerID)
	if _, ok := r.files[k]; ok {
		return fmt.Errorf("duplicate file %s", f.ID)
	}
	r.files[k] = cloneFile(f)
	return nil
}

func (r *fakeFiles) Get(_ context.Context, fileID, ownerID string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	f, ok := r.files[fileKey(fileID, ownerID)]
	if !ok {
		return nil, ErrFileNotFound
	}
	return cloneFile(f), nil
}

func (r *fakeFiles) List(_ context.Context, q *ListFilesQuery) (*FilePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*File
	for _, f := range r.files {
		if f.OwnerID == q.OwnerID && slices.Contains(q.Statuses, f.Status) {
			matched = append(matched, cloneFile(f))
		}
	}
	slices.SortFunc(matched, func(a, b *File) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		offset = n
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := min(offset+q.Limit, len(matched))

	page := &FilePage{Files: matched[offset:end]}
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (r *fakeFiles) transition(fileID, ownerID string, from FileStatus, apply func(f *File)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileKey(fileID, ownerID)]
	if !ok || f.Status != from {
		return false
	}
	apply(f)
	return true
}

func (r *fakeFiles) MarkCompleted(_ context.Context, fileID, ownerID string, c Completion, now time.Time) (bool, error) {
	return r.transition(fileID, ownerID, FileStatusUploading, func(f *File) {
		version, checksum := c.Version, c.Checksum
		f.Status = FileStatusCompleted
		f.Size = c.Size
		f.StorageVersion = &version
		f.Checksum = &checksum
		f.ModifiedAt = now
	}), nil
}

func (r *fakeFiles) MarkDeleted(_ context.Context, fileID, ownerID string, now time.Time) (bool, error) {
	return r.transition(fileID, ownerID, FileStatusCompleted, func(f *File) {
		f.Status = FileStatusDeleted
		f.DeletedAt = &now
		f.ModifiedAt = now
	}), nil
}

func (r *fakeFiles) MarkAbandoned(_ context.Context, fileID, ownerID string, now time.Time) (bool, error) {
	return r.transition(fileID, ownerID, FileStatusUploading, func(f *File) {
		f.Status = FileStatusAbandoned
		f.ModifiedAt = now
	}), nil
}

func (r *fakeFiles) ListStaleUploads(_ context.Context, before time.Time, limit int) ([]*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*File
	for _, f := range r.files {
		if f.Status == FileStatusUploading && f.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, cloneFile(f))
		}
	}
	return out, nil
}

// completedBytes 返回 owner 所有 completed 文件大小之和
func (r *fakeFiles) completedBytes(ownerID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, f := range r.files {
		if f.OwnerID == ownerID && f.Status == FileStatusCompleted {
			sum += f.Size
		}
	}
	return sum
}

func (r *fakeFiles) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

func (r *fakeFiles) status(t *testing.T, fileID, ownerID string) FileStatus {
	t.Helper()
	f, err := r.Get(context.Background(), fileID, ownerID)
	require.NoError(t, err)
	return f.Status
}

type fakeQuotas struct {
	mu           sync.Mutex
	quotas       map[string]*Quota
	defaultQuota int64
	files        *fakeFiles

	adjustErr error
}

func (l *fakeQuotas) getLocked(ownerID string) *Quota {
	q, ok := l.quotas[ownerID]
	if !ok {
		q = &Quota{OwnerID: ownerID, StorageQuota: l.defaultQuota}
		l.quotas[ownerID] = q
	}
	return q
}

func (l *fakeQuotas) Get(_ context.Context, ownerID string) (*Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := *l.getLocked(ownerID)
	return &q, nil
}

func (l *fakeQuotas) Adjust(_ context.Context, ownerID string, delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adjustErr != nil {
		return l.adjustErr
	}
	q := l.getLocked(ownerID)
	q.StorageUsed = max(q.StorageUsed+delta, 0)
	return nil
}

func (l *fakeQuotas) SetQuota(_ context.Context, ownerID string, quota int64) (*Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.getLocked(ownerID)
	q.StorageQuota = quota
	c := *q
	return &c, nil
}

func (l *fakeQuotas) Reconcile(_ context.Context, ownerID string) (int64, error) {
	l.mu.Lock()
	owners := make([]string, 0, len(l.quotas))
	for id := range l.quotas {
		if ownerID == "" || id == ownerID {
			owners = append(owners, id)
		}
	}
	l.mu.Unlock()

	for _, id := range owners {
		used := l.files.completedBytes(id)
		l.mu.Lock()
		l.quotas[id].StorageUsed = used
		l.mu.Unlock()
	}
	return int64(len(owners)), nil
}

func (l *fakeQuotas) used(ownerID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(ownerID).StorageUsed
}

type fakeShares struct {
	mu     sync.Mutex
	shares map[string]*ShareLink
}

func (r *fakeShares) Create(_ context.Context, s *ShareLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.shares[s.ID] = &c
	return nil
}

func (r *fakeShares) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shares)
}

func (r *fakeShares) Get(_ context.Context, shareID string) (*ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[shareID]
	if !ok {
		return nil, ErrShareNotFound
	}
	c := *s
	return &c, nil
}

func (r *fakeShares) ListByFile(_ context.Context, fileID, ownerID string) ([]*ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ShareLink
	for _, s := range r.shares {
		if s.FileID == fileID && s.CreatedBy == ownerID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeShares) Consume(_ context.Context, shareID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[shareID]
	if !ok || !s.Usable(now) {
		return false, nil
	}
	s.DownloadCount++
	return true, nil
}

func (r *fakeShares) Revoke(_ context.Context, shareID, ownerID string) (*ShareLink, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[shareID]
	if !ok || s.CreatedBy != ownerID {
		return nil, false, ErrShareNotFound
	}
	changed := !s.Revoked
	s.Revoked = true
	c := *s
	return &c, changed, nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []*AccessLogEntry

	appendErr error
}

func (r *fakeLogs) Append(_ context.Context, e *AccessLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	c := *e
	r.entries = append(r.entries, &c)
	return nil
}

func (r *fakeLogs) ListByFile(_ context.Context, fileID, ownerID string, now time.Time, limit int) ([]*AccessLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AccessLogEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		if e.FileID == fileID && e.OwnerID == ownerID && e.ExpiresAt.After(now) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeLogs) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var purged int64
	for _, e := range r.entries {
		if e.ExpiresAt.After(now) {
			kept = append(kept, e)
		} else {
			purged++
		}
	}
	r.entries = kept
	return purged, nil
}

// all 返回全部日志，按写入顺序
func (r *fakeLogs) all() []*AccessLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

func (r *fakeLogs) last(t *testing.T) *AccessLogEntry {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type objectVersion struct {
	version string
	data    []byte
}

// fakeObjects 带版本历史的对象存储
type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]objectVersion
	versions int
	// unversioned 模拟关闭版本控制的存储，探测不返回版本号
	unversioned bool

	writeURL  func(key string) string
	readURL   func(key string) string
	writeErr  error
	probeErr  error
	deleteErr error

	writeCalls int
	deletes    []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]objectVersion)}
}

func capabilityURL(key string, q url.Values) string {
	u := url.URL{Scheme: "https", Host: "store.test", Path: "/vault/" + key, RawQuery: q.Encode()}
	return u.String()
}

func (s *fakeObjects) IssueWriteCapability(_ context.Context, key, contentType string, size int64, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if s.writeErr != nil {
		return "", s.writeErr
	}
	if s.writeURL != nil {
		return s.writeURL(key), nil
	}
	return capabilityURL(key, url.Values{
		"X-Amz-Expires":   {strconv.Itoa(int(ttl.Seconds()))},
		"X-Amz-Signature": {"sig"},
		"content-type":    {contentType},
		"content-length":  {strconv.FormatInt(size, 10)},
	}), nil
}

func (s *fakeObjects) IssueReadCapability(_ context.Context, key, version string, ttl time.Duration, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readURL != nil {
		return s.readURL(key), nil
	}
	return capabilityURL(key, url.Values{
		"versionId":                    {version},
		"response-content-disposition": {`attachment; filename="` + filename + `"`},
		"X-Amz-Expires":                {strconv.Itoa(int(ttl.Seconds()))},
		"X-Amz-Signature":              {"sig"},
	}), nil
}

func (s *fakeObjects) Probe(_ context.Context, key string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	versions := s.objects[key]
	if len(versions) == 0 {
		return &ObjectInfo{Exists: false}, nil
	}
	latest := versions[len(versions)-1]
	info := &ObjectInfo{
		Exists:   true,
		Version:  latest.version,
		Checksum: fmt.Sprintf("etag-%s", latest.version),
		Size:     int64(len(latest.data)),
	}
	if s.unversioned {
		info.Version = ""
	}
	return info, nil
}

func (s *fakeObjects) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, key)
	delete(s.objects, key)
	return nil
}

// put 模拟客户端通过预签名地址写入，返回新版本号
func (s *fakeObjects) put(key string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions++
	v := fmt.Sprintf("v%d", s.versions)
	s.objects[key] = append(s.objects[key], objectVersion{version: v, data: data})
	return v
}

// fetch 模拟客户端使用读凭证下载，按 versionId 返回对应版本内容
func (s *fakeObjects) fetch(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(u.Path, "/vault/")
	version := u.Query().Get("versionId")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.objects[key] {
		if v.version == version {
			return v.data, nil
		}
	}
	return nil, errors.New("no such version")
}

// fakeTx 串行执行事务，出错时回滚文件与配额
type fakeTx struct {
	mu     sync.Mutex
	files  *fakeFiles
	quotas *fakeQuotas
}

func (tx *fakeTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.files.mu.Lock()
	files := make(map[string]*File, len(tx.files.files))
	for k, f := range tx.files.files {
		files[k] = cloneFile(f)
	}
	tx.files.mu.Unlock()

	tx.quotas.mu.Lock()
	quotas := make(map[string]*Quota, len(tx.quotas.quotas))
	for k, q := range tx.quotas.quotas {
		c := *q
		quotas[k] = &c
	}
	tx.quotas.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.files.mu.Lock()
		tx.files.files = files
		tx.files.mu.Unlock()
		tx.quotas.mu.Lock()
		tx.quotas.quotas = quotas
		tx.quotas.mu.Unlock()
		return err
	}
	return nil
}

type serialRunner struct{}

func (serialRunner) Run(ctx context.Context, tasks []func(ctx context.Context) error) error {
	var errs []error
	for _, task := range tasks {
		if err := task(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type testEnv struct {
	vault   *Vault
	files   *fakeFiles
	quotas  *fakeQuotas
	shares  *fakeShares
	logs    *fakeLogs
	objects *fakeObjects
	clock   *fakeClock
	stores  Stores
}

func newTestEnv(t *testing.T, mutate ...func(o *Options)) *testEnv {
	t.Helper()

	files := newFakeFiles()
	env := &testEnv{
		files:   files,
		quotas:  &fakeQuotas{quotas: make(map[string]*Quota), defaultQuota: 10 << 30, files: files},
		shares:  &fakeShares{shares: make(map[string]*ShareLink)},
		logs:    &fakeLogs{},
		objects: newFakeObjects(),
		clock:   newFakeClock(),
	}
	env.stores = Stores{
		Files:      env.files,
		Quotas:     env.quotas,
		Shares:     env.shares,
		AccessLogs: env.logs,
		Objects:    env.objects,
		Tx:         &fakeTx{files: env.files, quotas: env.quotas},
	}

	opts := DefaultOptions()
	opts.PublicBaseURL = "https://vault.test/"
	opts.PasswordCost = bcrypt.MinCost
	opts.ShareMissCacheSize = 16
	opts.Now = env.clock.Now
	for _, m := range mutate {
		m(&opts)
	}

	env.vault = NewVault(env.stores, opts, logger.Nop())
	return env
}

// initiate 发起一次上传
func (e *testEnv) initiate(t *testing.T, ownerID, name string, size int64) *InitiateUploadResult {
	t.Helper()
	res, err := e.vault.Upload.InitiateUpload(context.Background(), ownerID, &InitiateUploadRequest{
		Name:         name,
		DeclaredSize: size,
		ContentType:  "application/octet-stream",
	})
	require.NoError(t, err)
	return res
}

// storeCompleted 完成一次完整上传
func (e *testEnv) storeCompleted(t *testing.T, ownerID, name string, data []byte) *File {
	t.Helper()
	res := e.initiate(t, ownerID, name, int64(len(data)))
	e.objects.put(StorageKey(ownerID, res.FileID), data)

	done, err := e.vault.Upload.CompleteUpload(context.Background(), ownerID, res.FileID)
	require.NoError(t, err)
	require.Equal(t, FileStatusCompleted, done.File.Status)
	return done.File
}
