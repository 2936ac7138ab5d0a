package restapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"github.com/usaccidents/accidents-api/internal/blobstore"
	"github.com/usaccidents/accidents-api/internal/logging"
	"github.com/usaccidents/accidents-api/internal/utils"
)

const (
	maxUploadMemory = 32 << 20
	maxUploadBytes  = 1 << 30
	uploadFormField = "file"
)

var errBlobStoreMissing = errors.New("object storage is not configured")

func (api *RestAPI) blobDownloadHandler(w http.ResponseWriter, r *http.Request) {
	name := utils.ParamFromRequest(r, "filename")
	if err := blobstore.ValidateObjectName(name); err != nil {
		api.badRequestResponse(w, r, "Invalid file name")
		return
	}
	if api.Blobs == nil {
		api.errorResponse(w, r, http.StatusInternalServerError, "Failed to download file: "+errBlobStoreMissing.Error())
		return
	}

	obj, err := api.Blobs.Open(r.Context(), name)
	if errors.Is(err, blobstore.ErrNotFound) {
		api.errorResponse(w, r, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "blob download failed", err,
			slog.String("object", name))
		api.errorResponse(w, r, http.StatusInternalServerError, "Failed to download file: "+err.Error())
		return
	}
	defer logging.SafeCloseWithLogging(obj, logging.FromContext(r.Context()), "blob_download")

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": path.Base(name),
	}))
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", fmt.Sprint(obj.Size))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		// Headers are gone already; all that is left is to log.
		logging.LogError(logging.FromContext(r.Context()), "failed to stream blob", err,
			slog.String("object", name))
	}
}

func (api *RestAPI) blobUploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.errorResponse(w, r, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		api.badRequestResponse(w, r, "No file part in the request")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadFormField)
	if errors.Is(err, http.ErrMissingFile) {
		// A part named "file" without a filename arrives as a plain value.
		if _, ok := r.MultipartForm.Value[uploadFormField]; ok {
			api.badRequestResponse(w, r, "No selected file")
			return
		}
		api.badRequestResponse(w, r, "No file part in the request")
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	defer logging.SafeCloseWithLogging(file, logging.FromContext(r.Context()), "multipart_file")

	name := utils.SanitizeFilename(header.Filename)
	if name == "" {
		api.badRequestResponse(w, r, "No selected file")
		return
	}
	if api.Blobs == nil {
		api.errorResponse(w, r, http.StatusInternalServerError, "Failed to upload file: "+errBlobStoreMissing.Error())
		return
	}

	if err := api.Blobs.Put(r.Context(), name, header.Header.Get("Content-Type"), file); err != nil {
		if errors.Is(err, blobstore.ErrInvalidObjectName) {
			api.badRequestResponse(w, r, "Invalid file name")
			return
		}
		logging.LogError(logging.FromContext(r.Context()), "blob upload failed", err,
			slog.String("object", name))
		api.errorResponse(w, r, http.StatusInternalServerError, "Failed to upload file: "+err.Error())
		return
	}

	logging.LogOperation(logging.FromContext(r.Context()), "blob_uploaded",
		slog.String("object", name),
		slog.String("bucket", api.Blobs.Bucket()),
		slog.Int64("size", header.Size))

	api.sendJSON(w, r, map[string]string{
		"message": fmt.Sprintf("File %s uploaded successfully to %s", name, api.Blobs.Bucket()),
	})
}
