package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// CreateShareRequest 创建分享请求
type CreateShareRequest struct {
	ExpiresInSeconds int64
	MaxDownloads     int64
	Password         string
}

// CreateShareResult 创建分享结果
type CreateShareResult struct {
	Share    *ShareLink
	ShareURL string
}

// ShareView 分享及其当前可用状态
type ShareView struct {
	*ShareLink
	Usable bool
}

// ResolveShareResult 分享解析结果
type ResolveShareResult struct {
	Download           *DownloadResult
	ShareID            string
	RemainingDownloads int64 // -1 表示不限
}

// ShareCoordinator 分享协调器
type ShareCoordinator struct {
	*coordinator
	retrieval *RetrievalCoordinator
	misses    *expirable.LRU[string, struct{}]
}

func newShareCoordinator(base *coordinator, retrieval *RetrievalCoordinator) *ShareCoordinator {
	sc := &ShareCoordinator{coordinator: base, retrieval: retrieval}
	if base.opts.ShareMissCacheSize > 0 {
		sc.misses = expirable.NewLRU[string, struct{}](base.opts.ShareMissCacheSize, nil, base.opts.ShareMissCacheTTL)
	}
	return sc
}

// CreateShare 为 completed 文件创建分享
func (sc *ShareCoordinator) CreateShare(ctx context.Context, ownerID, fileID string, req *CreateShareRequest) (res *CreateShareResult, err error) {
	defer func() { observeOp("create_share", err) }()

	if req == nil {
		req = &CreateShareRequest{}
	}
	if req.MaxDownloads < 0 {
		return nil, invalid("maxDownloads must be >= 0")
	}

	maxSeconds := int64(sc.opts.MaxShareTTL / time.Second)
	ttl := time.Duration(req.ExpiresInSeconds) * time.Second
	switch {
	case req.ExpiresInSeconds < 0:
		return nil, invalid("expiresInSeconds must be >= 0")
	case req.ExpiresInSeconds == 0:
		ttl = sc.opts.DefaultShareTTL
	case req.ExpiresInSeconds > maxSeconds:
		return nil, invalid("expiresInSeconds must be at most %d", maxSeconds)
	}

	f, err := sc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if f.Status != FileStatusCompleted {
		return nil, ErrFileNotFound
	}

	now := sc.opts.Now()
	share := &ShareLink{
		ID:           uuid.NewString(),
		FileID:       f.ID,
		CreatedBy:    ownerID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		MaxDownloads: req.MaxDownloads,
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password, sc.opts.PasswordCost)
		if err != nil {
			return nil, err
		}
		share.PasswordHash = &hash
	}

	if err := sc.stores.Shares.Create(ctx, share); err != nil {
		sc.log.WithContext(ctx).Error("failed to create share", zap.String("file_id", f.ID), zap.Error(err))
		return nil, storeErr("create share", err)
	}
	if sc.misses != nil {
		sc.misses.Remove(share.ID)
	}

	sc.audit.success(ctx, f, ActionShare, DetailCreated, &share.ID)
	sc.log.WithContext(ctx).Info("share created",
		zap.String("file_id", f.ID),
		zap.String("share_id", share.ID),
		zap.Time("expires_at", share.ExpiresAt),
		zap.Int64("max_downloads", share.MaxDownloads),
		zap.Bool("password", share.HasPassword()),
	)

	return &CreateShareResult{Share: share, ShareURL: sc.shareURL(share.ID)}, nil
}

func (sc *ShareCoordinator) shareURL(shareID string) string {
	return strings.TrimRight(sc.opts.PublicBaseURL, "/") + "/share/" + shareID
}

// ResolveShare 校验分享并签发下载凭证，供未登录调用方使用
func (sc *ShareCoordinator) ResolveShare(ctx context.Context, shareID, password string) (res *ResolveShareResult, err error) {
	defer func() {
		observeOp("resolve_share", err)
		shareResolutions.WithLabelValues(outcome(err)).Inc()
	}()

	if shareID == "" {
		return nil, missing("shareId")
	}
	if sc.misses != nil {
		if _, ok := sc.misses.Get(shareID); ok {
			return nil, ErrShareNotFound
		}
	}

	// 1. 读取分享
	share, err := sc.stores.Shares.Get(ctx, shareID)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) && sc.misses != nil {
			sc.misses.Add(shareID, struct{}{})
		}
		return nil, storeErr("get share", err)
	}

	fail := func(cause error) (*ResolveShareResult, error) {
		sc.audit.failure(ctx, share.FileID, share.CreatedBy, ActionDownload, cause, DetailViaShare, &share.ID)
		return nil, cause
	}

	// 2. 可用性：撤销 → 过期 → 密码 → 次数
	now := sc.opts.Now()
	if err := share.Check(now); err != nil && !errors.Is(err, ErrDownloadLimitReached) {
		return fail(err)
	}
	if share.HasPassword() && !verifyPassword(*share.PasswordHash, password) {
		return fail(ErrInvalidPassword)
	}
	if err := share.Check(now); err != nil {
		return fail(err)
	}

	// 3. 通过创建者定位文件
	f, err := sc.stores.Files.Get(ctx, share.FileID, share.CreatedBy)
	if err != nil {
		return fail(storeErr("get file", err))
	}
	if f.Status != FileStatusCompleted {
		return fail(ErrFileNotFound)
	}

	// 4. 签发凭证后原子消耗一次下载次数
	download, err := sc.retrieval.mint(ctx, f)
	if err != nil {
		return fail(err)
	}

	ok, err := sc.stores.Shares.Consume(ctx, share.ID, now)
	if err != nil {
		sc.log.WithContext(ctx).Error("failed to consume share", zap.String("share_id", share.ID), zap.Error(err))
		return fail(storeErr("consume share", err))
	}
	if !ok {
		// 并发消耗或撤销，重新读取以返回准确原因
		return fail(sc.classify(ctx, share.ID, now))
	}

	remaining := int64(-1)
	if share.MaxDownloads > 0 {
		remaining = max(share.MaxDownloads-share.DownloadCount-1, 0)
	}

	sc.audit.success(ctx, f, ActionDownload, DetailViaShare, &share.ID)
	sc.log.WithContext(ctx).Info("share resolved",
		zap.String("share_id", share.ID),
		zap.String("file_id", f.ID),
	)
	return &ResolveShareResult{Download: download, ShareID: share.ID, RemainingDownloads: remaining}, nil
}

func (sc *ShareCoordinator) classify(ctx context.Context, shareID string, now time.Time) error {
	latest, err := sc.stores.Shares.Get(ctx, shareID)
	if err != nil {
		return storeErr("get share", err)
	}
	if err := latest.Check(now); err != nil {
		return err
	}
	return ErrDownloadLimitReached
}

// ListShares 列出文件的全部分享
func (sc *ShareCoordinator) ListShares(ctx context.Context, ownerID, fileID string) ([]*ShareView, error) {
	f, err := sc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	shares, err := sc.stores.Shares.ListByFile(ctx, f.ID, ownerID)
	if err != nil {
		return nil, storeErr("list shares", err)
	}

	now := sc.opts.Now()
	views := make([]*ShareView, 0, len(shares))
	for _, s := range shares {
		views = append(views, &ShareView{ShareLink: s, Usable: s.Usable(now)})
	}
	return views, nil
}

// RevokeShare 撤销分享，重复调用无副作用
func (sc *ShareCoordinator) RevokeShare(ctx context.Context, ownerID, shareID string) (share *ShareLink, err error) {
	defer func() { observeOp("revoke_share", err) }()

	if ownerID == "" {
		return nil, missing("ownerId")
	}
	if shareID == "" {
		return nil, missing("shareId")
	}

	share, changed, err := sc.stores.Shares.Revoke(ctx, shareID, ownerID)
	if err != nil {
		return nil, storeErr("revoke share", err)
	}
	if !changed {
		sc.log.WithContext(ctx).Debug("share already revoked", zap.String("share_id", shareID))
		return share, nil
	}

	sc.audit.record(ctx, &AccessLogEntry{
		FileID:  share.FileID,
		OwnerID: ownerID,
		Action:  ActionShare,
		Success: true,
		Detail:  DetailRevoked,
		ShareID: &share.ID,
	})
	sc.log.WithContext(ctx).Info("share revoked", zap.String("share_id", shareID))
	return share, nil
}
