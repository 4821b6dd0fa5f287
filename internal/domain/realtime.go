package domain

// Realtime event names exchanged over the channel.
const (
	EventAuthenticate          = "authenticate"
	EventAuthenticated         = "authenticated"
	EventAuthenticationError   = "authentication_error"
	EventRegisterPendingUser   = "register_pending_user"
	EventPendingRegistered     = "pending_registered"
	EventLoginApprovalRequest  = "login_approval_request"
	EventLoginApprovalResponse = "login_approval_response"
	EventLoginApproved         = "login_approved"
	EventLoginRejected         = "login_rejected"
	EventDashboardSeen         = "dashboard_seen"
	EventError                 = "error"
)

// GroupAdmins is the channel group every authenticated administrator joins.
const GroupAdmins = "admins"

// Destination addresses a push to a single connection or to a named group.
// Exactly one of Address and Group is set.
type Destination struct {
	Address string
	Group   string
}

// ToAddress targets one connection.
func ToAddress(addr string) Destination { return Destination{Address: addr} }

// ToGroup targets every connection in group.
func ToGroup(group string) Destination { return Destination{Group: group} }

// OutboundMessage is a server-initiated push. Delivery is fire-and-forget.
type OutboundMessage struct {
	To      Destination
	Event   string
	Payload any
}
