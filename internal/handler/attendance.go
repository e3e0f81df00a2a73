package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
	"invigilation/internal/report"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfContentType  = "application/pdf"
)

func (h *Handler) attendanceRecords(c *gin.Context) {
	date := c.DefaultQuery("date", model.FilterAll)
	export := c.Query("export")
	if export != "" && export != "excel" && export != "pdf" {
		fail(c, apperrors.Validation("Export must be excel or pdf"))
		return
	}

	records, err := h.attendance.Records(c.Request.Context(), date)
	if err != nil {
		fail(c, err)
		return
	}
	if export == "" {
		c.JSON(http.StatusOK, records)
		return
	}

	var buf bytes.Buffer
	ext, contentType := "xlsx", xlsxContentType
	if export == "pdf" {
		ext, contentType = "pdf", pdfContentType
		err = report.AttendancePDF(&buf, date, records)
	} else {
		err = report.AttendanceXLSX(&buf, records)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+report.ExportFilename("attendance", date, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req model.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation("Invalid request body"))
		return
	}
	msg, err := h.attendance.Mark(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}
