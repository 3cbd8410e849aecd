package httpapi

import "github.com/MrEthical07/goTrust/middleware"

func guardCookie(name string) middleware.Options {
	return middleware.Options{CookieName: name}
}
