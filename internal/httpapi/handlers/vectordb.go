package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/httpapi/middleware"
	"github.com/aris-project/aris/internal/vectordb"
)

// vectorDBErr maps ingestion sentinel errors to user-facing messages.
// Returns false when the error is not a known application outcome.
func vectorDBErr(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, vectordb.ErrNotFound):
		common.Err(c, "Vector database not exist")
	case errors.Is(err, vectordb.ErrDuplicateName):
		common.Err(c, "Vector database already exist")
	case errors.Is(err, vectordb.ErrEmbeddingNotFound):
		common.Err(c, "Embedding model not exist")
	case errors.Is(err, vectordb.ErrOverlapTooLarge):
		common.Err(c, "chunk_overlap must not exceed half of chunk_size")
	case errors.Is(err, vectordb.ErrNoDocuments):
		common.Err(c, "No documents to ingest")
	case errors.Is(err, vectordb.ErrEmpty):
		common.Err(c, "Vector DB is empty, please upload data first")
	case errors.Is(err, vectordb.ErrUnsupportedFile):
		common.Err(c, err.Error())
	default:
		return false
	}
	return true
}

type createVectorDBReq struct {
	VectorDBName        string `json:"vector_db_name" binding:"required"`
	EmbeddingName       string `json:"embedding_name" binding:"required"`
	VectorDBDescription string `json:"vector_db_description"`
}

func (h *Handler) CreateVectorDB(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	var req createVectorDBReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "vector_db_name and embedding_name required")
		return
	}

	vdb, err := h.VectorSvc.Create(c.Request.Context(), uid, req.VectorDBName, req.EmbeddingName, req.VectorDBDescription)
	if err != nil {
		if !vectorDBErr(c, err) {
			h.Log.Error("create vector db failed", zap.Uint64("uid", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}
	common.OK(c, vdb)
}

func (h *Handler) ListVectorDBs(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	dbs, err := h.VectorSvc.List(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list vector dbs failed", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, gin.H{"vector_dbs": dbs})
}

func (h *Handler) GetVectorDB(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	vdbID, err := strconv.ParseUint(c.Param("vector_db_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid vector db id")
		return
	}

	vdb, err := h.VectorSvc.Get(c.Request.Context(), uid, vdbID)
	if err != nil {
		if !vectorDBErr(c, err) {
			h.Log.Error("get vector db failed", zap.Uint64("uid", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}
	common.OK(c, vdb)
}

func (h *Handler) DeleteVectorDB(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	vdbID, err := strconv.ParseUint(c.Param("vector_db_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid vector db id")
		return
	}

	if err := h.VectorSvc.Delete(c.Request.Context(), uid, vdbID); err != nil {
		if !vectorDBErr(c, err) {
			h.Log.Error("delete vector db failed", zap.Uint64("uid", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}
	common.OKMsg(c, "Vector database deleted", nil)
}

func chunkParams(c *gin.Context) (int, int) {
	chunkSize, _ := strconv.Atoi(c.Query("chunk_size"))
	chunkOverlap, _ := strconv.Atoi(c.Query("chunk_overlap"))
	return chunkSize, chunkOverlap
}

func (h *Handler) UploadVectorDBFiles(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	vdbID, err := strconv.ParseUint(c.Param("vector_db_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid vector db id")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "multipart form required")
		return
	}
	var files []vectordb.UploadedFile
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "unreadable upload")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "unreadable upload")
			return
		}
		files = append(files, vectordb.UploadedFile{Name: fh.Filename, Data: data})
	}
	if len(files) == 0 {
		common.Err(c, "No documents to ingest")
		return
	}

	chunkSize, chunkOverlap := chunkParams(c)
	res, err := h.VectorSvc.UploadFiles(c.Request.Context(), uid, vdbID, files, chunkSize, chunkOverlap)
	if err != nil {
		if !vectorDBErr(c, err) {
			h.Log.Error("upload files failed",
				zap.Uint64("uid", uid), zap.Uint64("vector_db_id", vdbID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}
	common.OK(c, res)
}

type uploadURLsReq struct {
	URLs []string `json:"urls" binding:"required"`
}

func (h *Handler) UploadVectorDBURLs(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	vdbID, err := strconv.ParseUint(c.Param("vector_db_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid vector db id")
		return
	}

	var req uploadURLsReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		common.Fail(c, http.StatusBadRequest, 10001, "urls required")
		return
	}

	chunkSize, chunkOverlap := chunkParams(c)
	res, err := h.VectorSvc.UploadURLs(c.Request.Context(), uid, vdbID, req.URLs, chunkSize, chunkOverlap)
	if err != nil {
		if !vectorDBErr(c, err) {
			h.Log.Error("upload urls failed",
				zap.Uint64("uid", uid), zap.Uint64("vector_db_id", vdbID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}
	common.OK(c, res)
}
