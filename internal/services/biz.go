package services

import "github.com/google/wire"

// ProviderSet 暴露服务层构造函数供 Wire 注入。
var ProviderSet = wire.NewSet(
	NewSessionService,
	NewProgressReporter,
	NewDeliveryService,
	NewThumbnailService,
	NewUserService,
	wire.Bind(new(Deliverer), new(*DeliveryService)),
	wire.Bind(new(ThumbnailStore), new(*ThumbnailService)),
	wire.Bind(new(UserStore), new(*UserService)),
)
