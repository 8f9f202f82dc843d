package domain

// Endpoint tags known to the rotator. They match the inbound tags of the
// proxy server document and the backend names of the load balancer.
const (
	TagTrojanGRPC = "v10-trojan-grpc"
	TagVlessGRPC  = "v10-vless-grpc"
	TagVmessGRPC  = "v10-vmess-grpc"

	TagVlessHTTPUpgrade  = "v10-vless-httpupgrade"
	TagVmessHTTPUpgrade  = "v10-vmess-httpupgrade"
	TagTrojanHTTPUpgrade = "v10-trojan-httpupgrade"

	TagVlessTCP  = "v10-vless-tcp"
	TagVmessTCP  = "v10-vmess-tcp"
	TagTrojanTCP = "v10-trojan-tcp"

	TagVmessWS  = "v10-vmess-ws"
	TagTrojanWS = "v10-trojan-ws"
	TagVlessWS  = "v10-vless-ws"

	TagHysteria  = "hysteria_in_50062"
	TagReality   = "realityin_43124"
	TagSS2022    = "ss-new"
	TagShadowTLS = "shadowtls"
	TagTUIC      = "tuic_in_55851"
)

// Sentinel decoy domains baked into the load balancer template
const (
	RealitySentinel   = "www.habbo.com"
	ShadowTLSSentinel = "www.shamela.ws"
)
