package biz

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Options 业务参数
type Options struct {
	MaxFileSize        int64
	UploadURLTTL       time.Duration
	DownloadURLTTL     time.Duration
	DefaultShareTTL    time.Duration
	MaxShareTTL        time.Duration
	AccessLogRetention time.Duration
	PublicBaseURL      string

	ListDefaultLimit int
	ListMaxLimit     int

	// 分享未命中缓存，Size 为 0 时关闭
	ShareMissCacheSize int
	ShareMissCacheTTL  time.Duration

	PasswordCost int
	Now          func() time.Time
}

// DefaultOptions 默认业务参数
func DefaultOptions() Options {
	return Options{
		MaxFileSize:        5 << 30,
		UploadURLTTL:       time.Hour,
		DownloadURLTTL:     time.Hour,
		DefaultShareTTL:    time.Hour,
		MaxShareTTL:        30 * 24 * time.Hour,
		AccessLogRetention: 90 * 24 * time.Hour,
		ListDefaultLimit:   50,
		ListMaxLimit:       200,
		ShareMissCacheSize: 4096,
		ShareMissCacheTTL:  time.Minute,
		PasswordCost:       bcrypt.DefaultCost,
	}
}

func (o *Options) setDefaults() {
	d := DefaultOptions()
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = d.MaxFileSize
	}
	if o.UploadURLTTL <= 0 {
		o.UploadURLTTL = d.UploadURLTTL
	}
	if o.DownloadURLTTL <= 0 {
		o.DownloadURLTTL = d.DownloadURLTTL
	}
	if o.DefaultShareTTL <= 0 {
		o.DefaultShareTTL = d.DefaultShareTTL
	}
	if o.MaxShareTTL <= 0 {
		o.MaxShareTTL = d.MaxShareTTL
	}
	if o.AccessLogRetention <= 0 {
		o.AccessLogRetention = d.AccessLogRetention
	}
	if o.ListDefaultLimit <= 0 {
		o.ListDefaultLimit = d.ListDefaultLimit
	}
	if o.ListMaxLimit <= 0 {
		o.ListMaxLimit = d.ListMaxLimit
	}
	if o.ShareMissCacheSize > 0 && o.ShareMissCacheTTL <= 0 {
		o.ShareMissCacheTTL = d.ShareMissCacheTTL
	}
	if o.PasswordCost == 0 {
		o.PasswordCost = d.PasswordCost
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
}
