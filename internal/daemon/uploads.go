package daemon

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fingerid/internal/biometric"
	"fingerid/internal/fileutil"
	"fingerid/internal/logging"
	"fingerid/internal/services"
)

var imageExtensions = map[string]struct{}{
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".bmp":  {},
	".tiff": {},
	".webp": {},
}

// receiveImages stores the image parts of a multipart request in the temp
// directory, one file per modality. Requests that are not multipart yield an
// empty set. On error nothing is left on disk.
func (s *apiServer) receiveImages(c *gin.Context) (biometric.ImageSet, error) {
	var images biometric.ImageSet
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return images, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(len(biometric.Modalities))*s.maxUpload+1<<20)
	form, err := c.MultipartForm()
	if err != nil {
		return images, services.Wrap(services.ErrValidation, "api", "upload", "malformed multipart body", err)
	}

	for _, m := range biometric.Modalities {
		files := form.File[string(m)]
		if len(files) == 0 {
			continue
		}
		if len(files) > 1 {
			s.discardImages(c, images)
			return biometric.ImageSet{}, services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("only one %s image allowed", m), nil)
		}
		path, err := s.saveImage(c, m, files[0])
		if err != nil {
			s.discardImages(c, images)
			return biometric.ImageSet{}, err
		}
		images.Set(m, path)
	}
	return images, nil
}

func (s *apiServer) saveImage(c *gin.Context, m biometric.Modality, header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageExtensions[ext]; !ok {
		return "", services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("%s must be an image (jpeg, jpg, png, bmp, tiff, webp)", m), nil)
	}
	if header.Size > s.maxUpload {
		return "", services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("%s exceeds %d bytes", m, s.maxUpload), nil)
	}
	if header.Size == 0 {
		return "", services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("%s is empty", m), nil)
	}
	dst := filepath.Join(s.tempDir, string(m)+"-"+uuid.NewString()+ext)
	if err := c.SaveUploadedFile(header, dst); err != nil {
		return "", services.Wrap(services.ErrTransient, "api", "upload", "store "+string(m), err)
	}
	return dst, nil
}

// discardImages removes temp uploads. Files already adopted into the upload
// directory are gone from the temp path, so this is a no-op for them.
func (s *apiServer) discardImages(c *gin.Context, images biometric.ImageSet) {
	failed, err := fileutil.RemoveFiles(images.Paths()...)
	if err != nil {
		logging.WarnWithContext(s.log(c), "temporary upload cleanup failed", "upload_cleanup_failed",
			logging.Any("paths", failed),
			logging.Error(err),
			logging.Alert("orphaned_files"),
			logging.String(logging.FieldImpact, "uploaded images left in the temp directory"),
			logging.String(logging.FieldErrorHint, "check temp directory permissions"),
		)
	}
}

// completeImages derives a missing binary vein image when the transform is
// enabled. The derived file joins images and is cleaned up with them.
func (s *apiServer) completeImages(c *gin.Context, images *biometric.ImageSet) error {
	if images.VeinBin != "" || !s.components.Completer.Enabled() {
		return nil
	}
	return s.components.Completer.Complete(c.Request.Context(), images, s.tempDir)
}

// missingEnrollmentImages reports a 400 naming every absent modality.
func (s *apiServer) missingEnrollmentImages(c *gin.Context, images biometric.ImageSet) bool {
	missing := images.Missing(biometric.EnrollmentFields)
	if len(missing) == 0 {
		return false
	}
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = string(m)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":        "all four biometric images are required",
		"missingFiles": names,
	})
	return true
}
