package pipeline

// MaxFailures is the number of consecutive failing cycles that stop a worker.
const MaxFailures = 3

type fatal struct {
	error
}

func (f fatal) Cause() error {
	return f.error
}

// Fatal marks err as unrecoverable.  A worker returning it stops at once.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatal{err}
}

// IsFatal reports whether err, or any error it wraps, was marked by Fatal.
func IsFatal(err error) bool {
	type causer interface {
		Cause() error
	}

	for err != nil {
		if _, ok := err.(fatal); ok {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}

	return false
}
