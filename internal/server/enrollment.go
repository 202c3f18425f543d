package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	enrollmentdomain "github.com/smallbiznis/lms/internal/enrollment/domain"
)

type courseURI struct {
	CourseID string `uri:"courseId" binding:"required,snowflake"`
}

type captureOrderRequest struct {
	ExternalOrderID string `json:"externalOrderId" binding:"required,notblank"`
}

type orderResponse struct {
	OrderID string `json:"orderId"`
}

func (s *Server) InitiateEnrollment(c *gin.Context) {
	courseID, ok := bindCourseID(c)
	if !ok {
		return
	}
	caller, _ := callerFromContext(c)

	result, err := s.enrollmentSvc.Initiate(c.Request.Context(), caller, courseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Enrolled() {
		c.JSON(http.StatusCreated, gin.H{"data": result.Enrollment})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orderResponse{OrderID: result.OrderID}})
}

func (s *Server) CaptureEnrollment(c *gin.Context) {
	courseID, ok := bindCourseID(c)
	if !ok {
		return
	}
	var req captureOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	caller, _ := callerFromContext(c)

	enrollment, err := s.enrollmentSvc.Capture(c.Request.Context(), caller, enrollmentdomain.CaptureRequest{
		CourseID:        courseID,
		ExternalOrderID: req.ExternalOrderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": enrollment})
}

func (s *Server) ListEnrolledStudents(c *gin.Context) {
	courseID, ok := bindCourseID(c)
	if !ok {
		return
	}
	caller, _ := callerFromContext(c)

	enrollments, err := s.enrollmentSvc.ListByCourse(c.Request.Context(), caller, courseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": enrollments})
}

func bindCourseID(c *gin.Context) (snowflake.ID, bool) {
	var uri courseURI
	if err := c.ShouldBindUri(&uri); err != nil {
		AbortWithError(c, bindingError(err))
		return 0, false
	}
	id, err := parseID(uri.CourseID)
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	return id, true
}
