package trigger

import "fmt"

// ChannelError is returned when the push channel cannot be opened or drops
type ChannelError struct {
	Endpoint string
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("push channel %s: %v", e.Endpoint, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
