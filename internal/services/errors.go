package services

import (
	"errors"
	"fmt"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// 错误分类的 reason 常量，进入 kratos errors 的 Reason 字段。
const (
	ReasonSessionBusy         = "SESSION_BUSY"
	ReasonInsufficientInput   = "INSUFFICIENT_INPUT"
	ReasonResourceExhausted   = "RESOURCE_EXHAUSTED"
	ReasonFileTooLarge        = "FILE_TOO_LARGE"
	ReasonIncompatibleFormats = "INCOMPATIBLE_FORMATS"
	ReasonMergeTool           = "MERGE_TOOL_FAILED"
	ReasonStageTimeout        = "STAGE_TIMEOUT"
	ReasonDeliveryFailed      = "DELIVERY_FAILED"
	ReasonUserBanned          = "USER_BANNED"
	ReasonThumbnailNotFound   = "THUMBNAIL_NOT_FOUND"
)

// 哨兵错误。基础设施层返回这些值（或其包装），服务层负责
// 转换为带 reason 的 kratos error 上抛给消息层。
var (
	ErrSessionBusy         = errors.New("a merge is already in flight for this user")
	ErrInsufficientInput   = errors.New("at least two queued files are required")
	ErrResourceExhausted   = errors.New("not enough disk headroom for a new workspace")
	ErrFileTooLarge        = errors.New("file exceeds the configured size limit")
	ErrIncompatibleFormats = errors.New("inputs rejected for stream-copy concatenation")
	ErrMergeTool           = errors.New("merge tool failed")
	ErrStageTimeout        = errors.New("pipeline stage timed out")
	ErrDeliveryFailed      = errors.New("all delivery providers failed")
	ErrUserBanned          = errors.New("user is banned")
	ErrThumbnailNotFound   = errors.New("no thumbnail stored for this user")
)

func sessionBusyError(userID int64) error {
	return kerrors.Conflict(ReasonSessionBusy,
		fmt.Sprintf("user %d already has a merge in flight", userID)).WithCause(ErrSessionBusy)
}

func insufficientInputError(queued int) error {
	return kerrors.BadRequest(ReasonInsufficientInput,
		fmt.Sprintf("need at least 2 videos, got %d", queued)).WithCause(ErrInsufficientInput)
}

func fileTooLargeError(name string, size, limit int64) error {
	return kerrors.BadRequest(ReasonFileTooLarge,
		fmt.Sprintf("%s is %d bytes, limit is %d", name, size, limit)).WithCause(ErrFileTooLarge)
}

func userBannedError(userID int64) error {
	return kerrors.Forbidden(ReasonUserBanned,
		fmt.Sprintf("user %d is banned", userID)).WithCause(ErrUserBanned)
}

// classifyPipelineError 把管线内部错误映射到对外的错误分类。
// 哨兵已经是分类结果时直接包装；其余按 MergeTool 兜底归类不在这里做，
// 调用方（各阶段）保证返回的 error 链里带有哨兵。
func classifyPipelineError(err error) error {
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return kerrors.ServiceUnavailable(ReasonResourceExhausted, err.Error()).WithCause(ErrResourceExhausted)
	case errors.Is(err, ErrFileTooLarge):
		return kerrors.BadRequest(ReasonFileTooLarge, err.Error()).WithCause(ErrFileTooLarge)
	case errors.Is(err, ErrIncompatibleFormats):
		return kerrors.BadRequest(ReasonIncompatibleFormats, err.Error()).WithCause(ErrIncompatibleFormats)
	case errors.Is(err, ErrStageTimeout):
		return kerrors.GatewayTimeout(ReasonStageTimeout, err.Error()).WithCause(ErrStageTimeout)
	case errors.Is(err, ErrDeliveryFailed):
		return kerrors.ServiceUnavailable(ReasonDeliveryFailed, err.Error()).WithCause(ErrDeliveryFailed)
	case errors.Is(err, ErrMergeTool):
		return kerrors.InternalServer(ReasonMergeTool, err.Error()).WithCause(ErrMergeTool)
	default:
		return kerrors.InternalServer(ReasonMergeTool, err.Error()).WithCause(ErrMergeTool)
	}
}

// reasonOf 提取分类错误的 reason 码，供消息层选择用户文案。
func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return kerrors.FromError(err).Reason
}
