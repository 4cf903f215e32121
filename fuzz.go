//go:build gofuzz
// +build gofuzz

package ecat

func Fuzz(data []byte) int {
	dgs, err := ParseFrame(data)
	if err != nil {
		return 0
	}

	for _, d := range dgs {
		if _, err := d.Header.MarshalBinary(); err != nil {
			panic(err)
		}
	}

	f := NewFrame(BufferSize)
	for i, d := range dgs {
		var err error
		if i == 0 {
			_, err = f.SetupDatagram(d.Header.Command, d.Header.Index, d.Header.ADP, d.Header.ADO, d.Data)
		} else {
			_, err = f.AddDatagram(d.Header.Command, d.Header.Index, false, d.Header.ADP, d.Header.ADO, d.Data)
		}
		if err == ErrFrameTooLarge {
			return 0
		}
		if err != nil {
			panic(err)
		}
	}

	if _, err := ParseFrame(f.Payload()); err != nil {
		panic(err)
	}

	return 1
}
