package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"invigilation/internal/model"
)

const (
	rfidTag     = "rfid"
	timeSlotTag = "timeslot"
)

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(rfidTag, func(fl validator.FieldLevel) bool {
		return model.ValidRFIDTag(fl.Field().String())
	})
	_ = v.RegisterValidation(timeSlotTag, func(fl validator.FieldLevel) bool {
		return model.TimeSlot(fl.Field().String()).Valid()
	})
}

// bindingMessage turns a bind error into one operator-facing sentence.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case rfidTag:
		return "RFID tag must be exactly 10 digits"
	case timeSlotTag:
		return fmt.Sprintf("Invalid time slot %q", fe.Value())
	case "email":
		return fmt.Sprintf("Invalid email address %q", fe.Value())
	case "min", "gt":
		return fmt.Sprintf("%s must be a positive number", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
