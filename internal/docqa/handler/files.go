package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// FileHandler 处理文件上传与管理。
type FileHandler struct {
	svc *biz.FileService
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(svc *biz.FileService) *FileHandler {
	return &FileHandler{svc: svc}
}

// ListResponse 文件列表。
type ListResponse struct {
	Total int64         `json:"total"`
	Items []*model.File `json:"items"`
}

// RequestUpload 申请上传地址。
func (h *FileHandler) RequestUpload(c *gin.Context) {
	var req biz.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrDocQAInvalidRequest.WithMessage(err.Error()))
		return
	}
	ticket, err := h.svc.RequestUpload(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, ticket)
}

// ConfirmUpload 确认上传完成并开始入库。
func (h *FileHandler) ConfirmUpload(c *gin.Context) {
	file, err := h.svc.ConfirmUpload(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, file)
}

// List 列出调用者的文件。
func (h *FileHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	total, files, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), offset, limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if files == nil {
		files = []*model.File{}
	}
	response.OK(c, ListResponse{Total: total, Items: files})
}

// Get 返回单个文件。
func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.svc.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, file)
}

// Delete 删除文件。
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, nil)
}
