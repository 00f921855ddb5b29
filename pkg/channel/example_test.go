package channel_test

import (
	"context"
	"fmt"

	"github.com/vnykmshr/flowcore/pkg/channel"
)

func Example() {
	ctx := context.Background()
	ch := channel.MustNew[string](2)

	_ = ch.Put(ctx, "first")
	_ = ch.Put(ctx, "second")
	_ = ch.Close()

	for {
		v, err := ch.Get(ctx)
		if err != nil {
			fmt.Println(err)
			break
		}
		fmt.Println(v)
	}
	// Output:
	// first
	// second
	// resource is closed
}

func ExampleEndOfStream() {
	ctx := context.Background()
	ch := channel.MustNew[channel.Item[int]](4)

	_ = ch.Put(ctx, channel.Payload(1))
	_ = ch.Put(ctx, channel.Payload(2))
	_ = ch.Put(ctx, channel.EndOfStream[int]())

	for {
		item, _ := ch.Get(ctx)
		if item.IsEndOfStream() {
			fmt.Println("end of stream")
			return
		}
		fmt.Println("consumed", item.Value())
	}
	// Output:
	// consumed 1
	// consumed 2
	// end of stream
}
