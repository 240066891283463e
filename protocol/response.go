package protocol

import "errors"

// OK builds a successful response to req. The command and filename of the
// request are echoed.
func OK(req Payload, opts ...Option) Payload {
	return respond(req, StatusOK, opts...)
}

// Error builds an error response to req carrying a human readable message.
func Error(req Payload, message string) Payload {
	return respond(req, StatusError, WithDetails(message))
}

func respond(req Payload, status Status, opts ...Option) Payload {
	resp := Payload{
		Command:  req.Command,
		Status:   status,
		Filename: req.Filename,
	}

	for _, opt := range opts {
		opt(&resp)
	}

	return resp
}

// ErrorOrNil returns an error if the response carries an ERROR status.
// Otherwise it returns nil.
func (p Payload) ErrorOrNil() error {
	if p.Status != StatusError {
		return nil
	}

	return errors.New(p.DetailsOr("unspecified server error"))
}
