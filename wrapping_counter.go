package tssi

import "errors"

type wrappingCounter struct {
	value  int
	wrapAt int
}

var ErrCounterOverflow = errors.New("tssi: counter overflow")

func newWrappingCounter(wrapAt int) wrappingCounter {
	return wrappingCounter{
		value:  wrapAt + 1,
		wrapAt: wrapAt,
	}
}

func (c *wrappingCounter) get() int {
	return c.value
}

// isSet returns false until a first value has been set
func (c *wrappingCounter) isSet() bool {
	return c.value <= c.wrapAt
}

func (c *wrappingCounter) set(v int) error {
	if v > c.wrapAt {
		return ErrCounterOverflow
	}
	c.value = v
	return nil
}

// next returns the value following the current one without changing it
func (c *wrappingCounter) next() int {
	if c.value >= c.wrapAt {
		return 0
	}
	return c.value + 1
}

func (c *wrappingCounter) inc() int {
	c.value++
	if c.value > c.wrapAt {
		c.value = 0
	}
	return c.value
}

func (c *wrappingCounter) reset() {
	c.value = c.wrapAt + 1
}
