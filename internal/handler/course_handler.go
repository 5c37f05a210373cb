package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/course-api/internal/domain/entity"
	"github.com/yourusername/course-api/internal/domain/repository"
	"github.com/yourusername/course-api/internal/middleware"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/internal/service"
)

// CourseHandler обрабатывает запросы прогресса и сертификатов по курсу
type CourseHandler struct {
	progressService    *service.ProgressService
	certificateService *service.CertificateService
	courseRepo         repository.CourseRepository
	userRepo           repository.UserRepository
	// renderer может быть nil: тогда сертификат отдается как JSON-данные
	renderer            service.CertificateRenderer
	certificateTemplate string
}

// NewCourseHandler создает новый обработчик курсов
func NewCourseHandler(
	progressService *service.ProgressService,
	certificateService *service.CertificateService,
	courseRepo repository.CourseRepository,
	userRepo repository.UserRepository,
	renderer service.CertificateRenderer,
	certificateTemplate string,
) *CourseHandler {
	return &CourseHandler{
		progressService:     progressService,
		certificateService:  certificateService,
		courseRepo:          courseRepo,
		userRepo:            userRepo,
		renderer:            renderer,
		certificateTemplate: certificateTemplate,
	}
}

// WatchTimeRequest содержит обновление времени просмотра
type WatchTimeRequest struct {
	LectureID uint  `json:"lecture_id" binding:"required"`
	Seconds   int64 `json:"seconds"`
}

// QuizScoreRequest содержит балл за квиз курса
type QuizScoreRequest struct {
	Score int `json:"score"`
}

// UpdateWatchTime применяет отчет о просмотре к праву пользователя на курс
func (h *CourseHandler) UpdateWatchTime(c *gin.Context) {
	user, courseID, ok := h.userAndCourse(c)
	if !ok {
		return
	}

	var req WatchTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные запроса", "error_type": "invalid_request"})
		return
	}

	if err := h.progressService.UpdateWatchTime(user.ID, courseID, req.LectureID, req.Seconds); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Progress updated"})
}

// SubmitQuizScore записывает балл за квиз курса
func (h *CourseHandler) SubmitQuizScore(c *gin.Context) {
	user, courseID, ok := h.userAndCourse(c)
	if !ok {
		return
	}

	var req QuizScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные запроса", "error_type": "invalid_request"})
		return
	}

	if err := h.progressService.SubmitQuizScore(user.ID, courseID, req.Score); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Score submitted"})
}

// GenerateCertificate проверяет право на сертификат и отдает результат.
// При настроенном внешнем рендерере возвращается документ,
// иначе — данные для рендеринга.
func (h *CourseHandler) GenerateCertificate(c *gin.Context) {
	user, courseID, ok := h.userAndCourse(c)
	if !ok {
		return
	}

	data, err := h.certificateService.BuildCertificate(user, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.renderer == nil {
		c.JSON(http.StatusOK, gin.H{"certificate": data})
		return
	}

	pdf, err := h.renderer.Render(c.Request.Context(), h.certificateTemplate, data)
	if err != nil {
		log.Printf("[CourseHandler] Ошибка рендеринга сертификата user=%d course=%d: %v", user.ID, courseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Certificate rendering failed", "error_type": "internal_error"})
		return
	}

	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ExportProgress выгружает прогресс всех студентов курса в xlsx.
// Инструктор может выгружать только собственные курсы; админ — любые.
func (h *CourseHandler) ExportProgress(c *gin.Context) {
	user, courseID, ok := h.userAndCourse(c)
	if !ok {
		return
	}

	course, err := h.courseRepo.GetByID(courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	if user.Role != entity.RoleAdmin && course.AuthorID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the course author may export its progress", "error_type": "forbidden"})
		return
	}

	entitlements, err := h.progressService.ListCourseEntitlements(courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"User ID", "Name", "Email", "Watched time (sec)", "Quiz score", "Purchased at"}
	for i, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	row := 2
	for _, ent := range entitlements {
		// Деактивированные аккаунты отсечены скоупом чтения и в отчет не попадают
		student, err := h.userRepo.GetByID(ent.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			respondError(c, err)
			return
		}

		values := []interface{}{
			student.ID,
			student.Name,
			student.Email,
			ent.WatchedTime,
			ent.Score,
			ent.CreatedAt.Format("2006-01-02 15:04"),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		log.Printf("[CourseHandler] Ошибка формирования xlsx для курса ID=%d: %v", courseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed", "error_type": "internal_error"})
		return
	}

	filename := fmt.Sprintf("course-%d-progress.xlsx", courseID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// userAndCourse извлекает пользователя из контекста и ID курса из пути
func (h *CourseHandler) userAndCourse(c *gin.Context) (*entity.User, uint, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return nil, 0, false
	}

	courseID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный ID курса", "error_type": "invalid_request"})
		return nil, 0, false
	}
	return user, uint(courseID), true
}
