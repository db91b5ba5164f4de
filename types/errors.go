package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CoordError 协调引擎错误类型（基于 RFC7807 Problem Details 结构）
//
// 每个错误携带一个稳定的错误码（Code），调用方可以据此分支；
// ExitCode 将错误码映射为互不相同的进程退出码，供外部自动化使用
type CoordError struct {
	Code        string
	Layer       string
	UserMessage string
	Detail      string
	Details     map[string]interface{}
	TraceID     string
	Timestamp   string
	Err         error
}

func (e *CoordError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.UserMessage, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.UserMessage)
}

func (e *CoordError) Unwrap() error {
	return e.Err
}

// Layer 常量
const (
	LayerAccount = "account"
	LayerStore   = "store"
	LayerSigning = "signing"
	LayerTransfer = "transfer"
	LayerSync    = "sync"
	LayerGateway = "gateway"
	LayerService = "service"
)

// ErrorCode 错误码常量
const (
	ErrorCodeInvalidAddress         = "COORD_INVALID_ADDRESS"
	ErrorCodeUnknownChain           = "COORD_UNKNOWN_CHAIN"
	ErrorCodeAlreadyExists          = "COORD_ALREADY_EXISTS"
	ErrorCodeNotFound               = "COORD_NOT_FOUND"
	ErrorCodeInvalidTransition      = "COORD_INVALID_TRANSITION"
	ErrorCodeInvalidDocument        = "COORD_INVALID_DOCUMENT"
	ErrorCodeConflictingMetadata    = "COORD_CONFLICTING_METADATA"
	ErrorCodeNetworkError           = "COORD_NETWORK_ERROR"
	ErrorCodeInsufficientSignatures = "COORD_INSUFFICIENT_SIGNATURES"
	ErrorCodeNotAnOwner             = "COORD_NOT_AN_OWNER"
)

// exitCodes 错误码 → 进程退出码（互不相同，0 保留给成功）
var exitCodes = map[string]int{
	ErrorCodeInvalidAddress:         10,
	ErrorCodeUnknownChain:           11,
	ErrorCodeAlreadyExists:          12,
	ErrorCodeNotFound:               13,
	ErrorCodeInvalidTransition:      14,
	ErrorCodeInvalidDocument:        15,
	ErrorCodeConflictingMetadata:    16,
	ErrorCodeNetworkError:           17,
	ErrorCodeInsufficientSignatures: 18,
	ErrorCodeNotAnOwner:             19,
}

// NewCoordError 创建协调错误
func NewCoordError(code, layer, userMessage, detail string) *CoordError {
	return &CoordError{
		Code:        code,
		Layer:       layer,
		UserMessage: userMessage,
		Detail:      detail,
		Details:     make(map[string]interface{}),
		TraceID:     uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// WithCause 附加底层错误
func (e *CoordError) WithCause(err error) *CoordError {
	e.Err = err
	return e
}

// WithDetailField 附加结构化上下文字段
func (e *CoordError) WithDetailField(key string, value interface{}) *CoordError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCoordError 检查错误（或其链上任意一环）是否为 CoordError
func IsCoordError(err error) (*CoordError, bool) {
	var ce *CoordError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode 检查错误是否携带指定错误码
func HasCode(err error, code string) bool {
	ce, ok := IsCoordError(err)
	return ok && ce.Code == code
}

// ExitCode 将错误映射为进程退出码
// nil → 0；已知错误码 → 对应退出码；其他错误 → 1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := IsCoordError(err); ok {
		if code, ok := exitCodes[ce.Code]; ok {
			return code
		}
	}
	return 1
}

// 以下为各错误类别的构造函数

// ErrInvalidAddress 地址格式非法（长度错误 / 非十六进制字符）
func ErrInvalidAddress(detail string) *CoordError {
	return NewCoordError(ErrorCodeInvalidAddress, LayerAccount, "invalid address", detail)
}

// ErrUnknownChain 链短名未在注册表中登记
func ErrUnknownChain(shortName string) *CoordError {
	return NewCoordError(ErrorCodeUnknownChain, LayerAccount, "unknown chain", fmt.Sprintf("short name %q is not registered", shortName)).
		WithDetailField("shortName", shortName)
}

// ErrAlreadyExists 指定 hash 的提案已存在
func ErrAlreadyExists(hash string) *CoordError {
	return NewCoordError(ErrorCodeAlreadyExists, LayerStore, "transaction already exists", fmt.Sprintf("safeTxHash %s is already stored", hash)).
		WithDetailField("safeTxHash", hash)
}

// ErrNotFound 指定 hash 的提案不存在
func ErrNotFound(hash string) *CoordError {
	return NewCoordError(ErrorCodeNotFound, LayerStore, "transaction not found", fmt.Sprintf("safeTxHash %s is not stored", hash)).
		WithDetailField("safeTxHash", hash)
}

// ErrInvalidTransition 状态迁移违反状态机
func ErrInvalidTransition(from, to Status) *CoordError {
	return NewCoordError(ErrorCodeInvalidTransition, LayerStore, "invalid status transition", fmt.Sprintf("cannot transition from %s to %s", from, to)).
		WithDetailField("from", string(from)).
		WithDetailField("to", string(to))
}

// ErrInvalidDocument 传输文档结构或字段非法
func ErrInvalidDocument(detail string) *CoordError {
	return NewCoordError(ErrorCodeInvalidDocument, LayerTransfer, "invalid transfer document", detail)
}

// ErrConflictingMetadata 相同 hash 的文档携带了不一致的元数据
func ErrConflictingMetadata(hash string) *CoordError {
	return NewCoordError(ErrorCodeConflictingMetadata, LayerTransfer, "conflicting metadata", fmt.Sprintf("document metadata differs from stored record for safeTxHash %s", hash)).
		WithDetailField("safeTxHash", hash)
}

// ErrNetwork 远端调用失败（可重试）
func ErrNetwork(detail string, cause error) *CoordError {
	return NewCoordError(ErrorCodeNetworkError, LayerGateway, "network error", detail).WithCause(cause)
}

// ErrInsufficientSignatures 已收集的有效签名未达到阈值
func ErrInsufficientSignatures(collected, required int) *CoordError {
	return NewCoordError(ErrorCodeInsufficientSignatures, LayerService, "insufficient signatures", fmt.Sprintf("collected %d of %d required signatures", collected, required)).
		WithDetailField("collected", collected).
		WithDetailField("required", required)
}

// ErrNotAnOwner 签名者不在链上实时 owner 集合中
func ErrNotAnOwner(signer string) *CoordError {
	return NewCoordError(ErrorCodeNotAnOwner, LayerService, "signer is not an owner", fmt.Sprintf("address %s is not an owner of this Safe", signer)).
		WithDetailField("signer", signer)
}
