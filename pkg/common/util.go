package common

import "io"

func CheckClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}

func StrTruncate(s string, maxlen int) string {
	if len(s) > maxlen {
		return s[0:maxlen]
	}
	return s
}
