package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/gin-gonic/gin"
)

const msgDocumentNotFound = "Document not found"

func (s *Server) listCategories(c *gin.Context) {
	list, err := s.svc.Categories.List(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]*categoryResponse, 0, len(list))
	for i := range list {
		out = append(out, newCategoryCountResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, common.ErrorNotFound)
		return
	}
	cat, err := s.svc.Categories.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryCountResponse(cat))
}

// --- folders ---

// folderQuery reads ?category= and ?parent=, where parent "" or "null"
// selects root folders. A non-numeric category matches nothing.
func folderQuery(c *gin.Context) (models.FolderQuery, bool) {
	var q models.FolderQuery
	if raw := c.Query("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, false
		}
		q.CategoryID = &id
	}
	if parent, ok := c.GetQuery("parent"); ok {
		if parent == "" || parent == "null" {
			q.RootOnly = true
		} else {
			q.ParentID = &parent
		}
	}
	return q, true
}

func (s *Server) listFolders(c *gin.Context) {
	q, ok := folderQuery(c)
	if !ok {
		c.JSON(http.StatusOK, []folderResponse{})
		return
	}
	list, err := s.svc.Folders.List(c.Request.Context(), userID(c), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]folderResponse, 0, len(list))
	for _, f := range list {
		out = append(out, newFolderResponse(f))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getFolder(c *gin.Context) {
	f, err := s.svc.Folders.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFolderResponse(f))
}

func folderInput(src fieldSource) (services.FolderInput, error) {
	v := &common.ValidationError{}
	in := services.FolderInput{
		EncryptedName: optionalString(src, "encrypted_name"),
		Color:         optionalString(src, "color"),
		Icon:          optionalString(src, "icon"),
	}
	in.CategoryID, _ = optionalPK(src, v, "category")
	in.ParentID, in.SetParent = nullable(src, "parent")
	return in, v.OrNil()
}

func (s *Server) createFolder(c *gin.Context) {
	fields, err := decodeJSONFields(c)
	if err != nil {
		badJSON(c)
		return
	}
	in, err := folderInput(fields)
	if err != nil {
		s.writeError(c, err)
		return
	}
	f, err := s.svc.Folders.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newFolderResponse(f))
}

// updateFolder serves both PUT and PATCH; fields that are not sent are
// left unchanged.
func (s *Server) updateFolder(c *gin.Context) {
	fields, err := decodeJSONFields(c)
	if err != nil {
		badJSON(c)
		return
	}
	in, err := folderInput(fields)
	if err != nil {
		s.writeError(c, err)
		return
	}
	f, err := s.svc.Folders.Update(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFolderResponse(f))
}

func (s *Server) deleteFolder(c *gin.Context) {
	if err := s.svc.Folders.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) folderTree(c *gin.Context) {
	t, err := s.svc.Folders.Tree(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.folderTreeResponse(c.Request.Context(), t))
}

// --- documents ---

// documentQuery reads ?category= ("all" or empty for every category),
// ?folder= ("" or "null" for documents outside folders), ?search= and
// ?ordering=.
func documentQuery(c *gin.Context) (models.DocumentQuery, bool) {
	q := models.DocumentQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: c.Query("ordering"),
	}
	if raw := c.Query("category"); raw != "" && raw != "all" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, false
		}
		q.CategoryID = &id
	}
	if folder, ok := c.GetQuery("folder"); ok {
		if folder == "" || folder == "null" {
			q.RootOnly = true
		} else {
			q.FolderID = &folder
		}
	}
	return q, true
}

func (s *Server) listDocuments(c *gin.Context) {
	q, ok := documentQuery(c)
	if !ok {
		c.JSON(http.StatusOK, []documentResponse{})
		return
	}
	ctx := c.Request.Context()
	list, err := s.svc.Documents.List(ctx, userID(c), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]documentResponse, 0, len(list))
	for _, d := range list {
		out = append(out, s.documentResponse(ctx, d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getDocument(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := s.svc.Documents.Get(ctx, userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, withNotFound(err, msgDocumentNotFound))
		return
	}
	c.JSON(http.StatusOK, s.documentResponse(ctx, d))
}

func documentInput(src fieldSource) (services.DocumentInput, *common.ValidationError) {
	v := &common.ValidationError{}
	in := services.DocumentInput{
		EncryptedTitle:       optionalString(src, "encrypted_title"),
		EncryptedDescription: optionalString(src, "encrypted_description"),
		EncryptedDocType:     optionalString(src, "encrypted_doc_type"),
		EncryptedIssueDate:   optionalString(src, "encrypted_issue_date"),
		EncryptedExpiryDate:  optionalString(src, "encrypted_expiry_date"),
	}
	in.CategoryID, in.SetCategory = optionalPK(src, v, "category")
	in.FolderID, in.SetFolder = nullable(src, "folder")
	in.HasExpiry = optionalBool(src, v, "has_expiry")
	in.NotificationTriggerTimestamp = optionalTime(src, v, "notification_trigger_timestamp")
	if notes := optionalString(src, "encrypted_change_notes"); notes != nil {
		in.ChangeNotes = *notes
	}
	return in, v
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// readUpload reads the encrypted_file part. It returns nil when the part
// is absent.
func (s *Server) readUpload(c *gin.Context) (*services.Upload, error) {
	fh, err := c.FormFile("encrypted_file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &services.Upload{
		Data:        data,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}

// documentRequest decodes a multipart or JSON document payload. Files are
// only accepted in multipart bodies, which are capped at maxUploadSize.
func (s *Server) documentRequest(c *gin.Context) (services.DocumentInput, bool) {
	if !isMultipart(c) {
		fields, err := decodeJSONFields(c)
		if err != nil {
			badJSON(c)
			return services.DocumentInput{}, false
		}
		in, v := documentInput(fields)
		if !v.Empty() {
			s.writeError(c, v)
			return in, false
		}
		return in, true
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("File too large. Maximum size is %d bytes", s.maxUploadSize),
			})
			return services.DocumentInput{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Multipart form parse error"})
		return services.DocumentInput{}, false
	}

	in, v := documentInput(formFields{c})
	if !v.Empty() {
		s.writeError(c, v)
		return in, false
	}
	upload, err := s.readUpload(c)
	if err != nil {
		s.writeError(c, err)
		return in, false
	}
	in.File = upload
	return in, true
}

func (s *Server) createDocument(c *gin.Context) {
	in, ok := s.documentRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	d, err := s.svc.Documents.Create(ctx, userID(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.documentResponse(ctx, d))
}

func (s *Server) updateDocument(c *gin.Context) {
	in, ok := s.documentRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	d, err := s.svc.Documents.Update(ctx, userID(c), c.Param("id"), in)
	if err != nil {
		s.writeError(c, withNotFound(err, msgDocumentNotFound))
		return
	}
	c.JSON(http.StatusOK, s.documentResponse(ctx, d))
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.svc.Documents.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.writeError(c, withNotFound(err, msgDocumentNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Document deleted"})
}

func (s *Server) downloadDocument(c *gin.Context) {
	d, body, err := s.svc.Documents.Download(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if !errors.Is(err, services.ErrFileNotFound) {
			err = withNotFound(err, msgDocumentNotFound)
		}
		s.writeError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, d.FileSize, models.DefaultMimeType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s.enc"`, d.ID),
	})
}

func (s *Server) documentVersions(c *gin.Context) {
	list, err := s.svc.Documents.Versions(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, withNotFound(err, msgDocumentNotFound))
		return
	}
	out := make([]versionResponse, 0, len(list))
	for _, v := range list {
		out = append(out, versionResponse{
			ID:                   v.ID,
			VersionNumber:        v.VersionNumber,
			FileSize:             v.FileSize,
			FileHash:             v.FileHash,
			EncryptedChangeNotes: v.EncryptedChangeNotes,
			CreatedAt:            v.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) moveDocuments(c *gin.Context) {
	fields, err := decodeJSONFields(c)
	if err != nil {
		badJSON(c)
		return
	}

	var ids []string
	raw, ok := fields["document_ids"]
	if ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &ids); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document_ids must be an array"})
			return
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_ids required"})
		return
	}
	folderID, _ := nullable(fields, "folder_id")

	moved, err := s.svc.Documents.Move(c.Request.Context(), userID(c), ids, folderID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"moved_count": moved,
		"folder_id":   folderID,
	})
}
