package multipart_test

import (
	"fmt"
	"strings"

	"github.com/sniffpart/sniffpart/pkg/multipart"
)

type printer struct{}

func (printer) BeginPart(h multipart.Header) error {
	fmt.Printf("begin %s\n", h.FieldName())
	return nil
}

func (printer) PartData(p []byte) error {
	fmt.Printf("data %q\n", p)
	return nil
}

func (printer) EndPart() error {
	fmt.Println("end")
	return nil
}

func ExampleParser() {
	body := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"greeting\"\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--XYZ--"

	p, err := multipart.NewParser(printer{}, []byte("XYZ"))
	if err != nil {
		panic(err)
	}
	// Feed the body in two chunks, splitting the closing boundary.
	cut := strings.Index(body, "XYZ--")
	if err := p.Parse([]byte(body[:cut])); err != nil {
		panic(err)
	}
	if err := p.Parse([]byte(body[cut:])); err != nil {
		panic(err)
	}
	fmt.Println(p.Close() == nil)
	// Output:
	// begin greeting
	// data "hello"
	// end
	// true
}
