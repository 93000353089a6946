package common

func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Clone returns a copy of b backed by a freshly allocated array.
func Clone(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
