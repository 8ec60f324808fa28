package xfer

// Request is a control operation, numbered like the device's ioctl requests.
type Request uint32
const (
	ReqGetStatus	Request = 0
	ReqGetPointer	Request = 1
	ReqSetPointer	Request = 2
	ReqErase		Request = 3
)

func (r Request) String() string {
	switch r {
	case ReqGetStatus:
		return "get-status"
	case ReqGetPointer:
		return "get-pointer"
	case ReqSetPointer:
		return "set-pointer"
	case ReqErase:
		return "erase"
	}
	return "unknown"
}

// Control is the single-entry form of Status, Pointer, SetPointer and Erase. arg is only
// read by ReqSetPointer; the result is only meaningful for ReqGetPointer.
func (e *Engine) Control(req Request, arg uint32) (uint32, error) {
	switch req {
	case ReqGetStatus:
		return 0, e.Status()
	case ReqGetPointer:
		return e.Pointer(), nil
	case ReqSetPointer:
		return 0, e.SetPointer(arg)
	case ReqErase:
		return 0, e.Erase()
	}
	return 0, ErrInvalidArg
}
