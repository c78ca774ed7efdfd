package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/xrplayer/pool"
)

var (
	framePool = pool.NewPool(
		astiav.AllocFrame,
		(*astiav.Frame).Unref,
		(*astiav.Frame).Free,
	)
	packetPool = pool.NewPool(
		astiav.AllocPacket,
		(*astiav.Packet).Unref,
		(*astiav.Packet).Free,
	)
)
