package dto

import (
	"time"

	appctx "seqnum/internal/core/context"
	"seqnum/internal/core/numerator"
)

// --- Request DTOs ---

// CreateSequenceRequest is the request body for creating a sequence.
type CreateSequenceRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name" binding:"required"`
	CompanyID      string `json:"companyId"`
	Implementation string `json:"implementation"`
	Active         *bool  `json:"active"`
	NumberNext     *int64 `json:"numberNext"`
	Increment      *int64 `json:"increment"`
	Padding        int    `json:"padding" binding:"min=0"`
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	AutoReset      bool   `json:"autoReset"`
	ResetPeriod    string `json:"resetPeriod"`
	ResetValue     *int64 `json:"resetValue"`
}

// ToEntity converts DTO to domain entity. Omitted fields keep the
// NewSequence defaults.
func (r *CreateSequenceRequest) ToEntity() (*numerator.Sequence, error) {
	s := numerator.NewSequence(r.Code, r.Name)

	companyID, err := ParseOptionalID("companyId", r.CompanyID)
	if err != nil {
		return nil, err
	}
	s.CompanyID = companyID

	if r.Implementation != "" {
		s.Implementation = numerator.Implementation(r.Implementation)
	}
	if r.Active != nil {
		s.Active = *r.Active
	}
	if r.NumberNext != nil {
		s.NumberNext = *r.NumberNext
	}
	if r.Increment != nil {
		s.Increment = *r.Increment
	}
	s.Padding = r.Padding
	s.Prefix = r.Prefix
	s.Suffix = r.Suffix
	s.AutoReset = r.AutoReset
	if r.ResetPeriod != "" {
		period, err := numerator.ParsePeriod(r.ResetPeriod)
		if err != nil {
			return nil, err
		}
		s.ResetPeriod = period
	}
	if r.ResetValue != nil {
		s.ResetValue = *r.ResetValue
	}
	return s, nil
}

// NextValueRequest carries the date overrides of the "next value" endpoints,
// from the query string or the optional body. Body fields win.
type NextValueRequest struct {
	EffectiveDate string `json:"effectiveDate" form:"effectiveDate"`
	RangeDate     string `json:"rangeDate" form:"rangeDate"`
}

// ToCallContext combines the request with the caller resolved by middleware.
func (r *NextValueRequest) ToCallContext(caller *appctx.CallerContext) (numerator.CallContext, error) {
	var call numerator.CallContext

	effective, err := ParseDate("effectiveDate", r.EffectiveDate)
	if err != nil {
		return call, err
	}
	rangeDate, err := ParseDate("rangeDate", r.RangeDate)
	if err != nil {
		return call, err
	}
	call.EffectiveDate = effective
	call.RangeDate = rangeDate

	if caller != nil {
		companyID, err := ParseOptionalID("companyId", caller.CompanyID)
		if err != nil {
			return call, err
		}
		call.CompanyID = companyID
		call.Timezone = caller.Timezone
	}
	return call, nil
}

// SetNextNumberRequest makes Value the next number issued.
type SetNextNumberRequest struct {
	Value int64 `json:"value"`
}

// UpdateResetRequest changes auto-reset settings.
type UpdateResetRequest struct {
	AutoReset   bool   `json:"autoReset"`
	ResetPeriod string `json:"resetPeriod" binding:"required"`
	ResetValue  int64  `json:"resetValue"`
	Version     int    `json:"version" binding:"required,min=1"`
}

// ToSettings converts the request to domain settings.
func (r *UpdateResetRequest) ToSettings() (numerator.ResetSettings, error) {
	period, err := numerator.ParsePeriod(r.ResetPeriod)
	if err != nil {
		return numerator.ResetSettings{}, err
	}
	return numerator.ResetSettings{
		AutoReset:  r.AutoReset,
		Period:     period,
		ResetValue: r.ResetValue,
		Version:    r.Version,
	}, nil
}

// --- Response DTOs ---

// SequenceResponse is the response body for a sequence.
type SequenceResponse struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	CompanyID      *string   `json:"companyId,omitempty"`
	Implementation string    `json:"implementation"`
	Active         bool      `json:"active"`
	NumberNext     int64     `json:"numberNext"`
	Increment      int64     `json:"increment"`
	Padding        int       `json:"padding"`
	Prefix         string    `json:"prefix"`
	Suffix         string    `json:"suffix"`
	AutoReset      bool      `json:"autoReset"`
	ResetPeriod    string    `json:"resetPeriod"`
	ResetToken     string    `json:"resetToken,omitempty"`
	ResetValue     int64     `json:"resetValue"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FromSequence converts domain entity to response DTO.
func FromSequence(s *numerator.Sequence) SequenceResponse {
	resp := SequenceResponse{
		ID:             s.ID.String(),
		Code:           s.Code,
		Name:           s.Name,
		Implementation: string(s.Implementation),
		Active:         s.Active,
		NumberNext:     s.NumberNext,
		Increment:      s.Increment,
		Padding:        s.Padding,
		Prefix:         s.Prefix,
		Suffix:         s.Suffix,
		AutoReset:      s.AutoReset,
		ResetPeriod:    string(s.ResetPeriod),
		ResetToken:     s.ResetToken,
		ResetValue:     s.ResetValue,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.CompanyID != nil {
		company := s.CompanyID.String()
		resp.CompanyID = &company
	}
	return resp
}

// SequenceListResponse wraps a list of sequences.
type SequenceListResponse struct {
	Items      []SequenceResponse `json:"items"`
	TotalCount int                `json:"totalCount"`
}

// NextValueResponse carries an issued value. Found is false when no
// sequence matched the code; that is not an error.
type NextValueResponse struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}
