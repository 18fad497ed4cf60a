package httpdto

// Response is the envelope of every JSON body. Failures may still carry
// data, e.g. the failed session or the per-dependency health report.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

func NewFailureResponse[T any](data T, err string, code string) Response[T] {
	return Response[T]{
		Success: false,
		Data:    data,
		Error:   err,
		Code:    code,
	}
}
