package bus

// Room keys follow the scope:id convention. RoomRootAdmin is the singleton
// room every platform admin connection joins; lifecycle events are
// published there in addition to the owning club's room.
const RoomRootAdmin = "root_admin"

func ClubRoom(clubID string) string { return "club:" + clubID }

func OrganizationRoom(orgID string) string { return "organization:" + orgID }
