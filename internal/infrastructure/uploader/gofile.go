// Package uploader 提供云端分发通道：当产物超过 Bot API 直传上限时，
// 按优先级尝试各上传服务并返回可分享链接。
package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultGofileAPIBase = "https://api.gofile.io"

// GofileProvider 通过 gofile.io 匿名（或带 token）上传并取回分享页链接。
type GofileProvider struct {
	apiBase string
	token   string
	http    *http.Client
	log     *log.Helper
}

// NewGofileProvider 创建 gofile 上传器。apiBase 为空时使用官方 API 地址，
// token 可为空（匿名上传）。
func NewGofileProvider(apiBase, token string, logger log.Logger) *GofileProvider {
	if apiBase == "" {
		apiBase = defaultGofileAPIBase
	}
	return &GofileProvider{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		http:    &http.Client{},
		log:     log.NewHelper(logger),
	}
}

// Name 实现 services.UploadProvider。
func (p *GofileProvider) Name() string { return "gofile" }

type gofileEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Server       string `json:"server"`
		DownloadPage string `json:"downloadPage"`
	} `json:"data"`
}

// Upload 先询问可用节点，再以 multipart 推送文件，返回下载页地址。
func (p *GofileProvider) Upload(ctx context.Context, path string) (string, error) {
	server, err := p.pickServer(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("gofile: open %s: %w", path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		if p.token != "" {
			if err := mw.WriteField("token", p.token); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	endpoint := fmt.Sprintf("https://%s.gofile.io/uploadFile", server)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("gofile: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gofile: upload: %w", err)
	}
	defer resp.Body.Close()

	var envelope gofileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("gofile: decode upload response: %w", err)
	}
	if envelope.Status != "ok" || envelope.Data.DownloadPage == "" {
		return "", fmt.Errorf("gofile: upload rejected: status=%s", envelope.Status)
	}
	return envelope.Data.DownloadPage, nil
}

func (p *GofileProvider) pickServer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/getServer", nil)
	if err != nil {
		return "", fmt.Errorf("gofile: build server request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gofile: query server: %w", err)
	}
	defer resp.Body.Close()

	var envelope gofileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("gofile: decode server response: %w", err)
	}
	if envelope.Status != "ok" || envelope.Data.Server == "" {
		return "", errors.New("gofile: no available server")
	}
	return envelope.Data.Server, nil
}
