package auth

// Action names an operation subject to authorization.
type Action string

const (
	ActionUserRegister    Action = "user.register"
	ActionUserRead        Action = "user.read"
	ActionUserSearch      Action = "user.search"
	ActionUserUpdateFlags Action = "user.update_flags"
	ActionOperatorList    Action = "operator.list"
	ActionTicketCreate    Action = "ticket.create"
	ActionTicketList      Action = "ticket.list"
	ActionTicketRead      Action = "ticket.read"
	ActionTicketUpdate    Action = "ticket.update"
	ActionTicketDelete    Action = "ticket.delete"
	ActionCommentList     Action = "comment.list"
	ActionCommentAdd      Action = "comment.add"
)

type rule int

const (
	ruleAnyone rule = iota + 1
	ruleAuthenticated
	ruleAdminOrOwner
	ruleAdmin
)

// Single source of truth for who may do what. Actions missing here are denied.
var rules = map[Action]rule{
	ActionUserRegister:    ruleAnyone,
	ActionUserRead:        ruleAdminOrOwner,
	ActionUserSearch:      ruleAdmin,
	ActionUserUpdateFlags: ruleAdmin,
	ActionOperatorList:    ruleAdmin,
	ActionTicketCreate:    ruleAuthenticated,
	ActionTicketList:      ruleAuthenticated,
	ActionTicketRead:      ruleAdminOrOwner,
	ActionTicketUpdate:    ruleAdminOrOwner,
	ActionTicketDelete:    ruleAdmin,
	ActionCommentList:     ruleAdminOrOwner,
	ActionCommentAdd:      ruleAdminOrOwner,
}
