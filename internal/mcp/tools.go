package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stateToolDef = mcp.NewTool("topic_state",
	mcp.WithDescription("Return the navigator's current view: active news topic, breadcrumb, "+
		"the topics at the current level with their semantic distances, posts and summary."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var navigateToolDef = mcp.NewTool("topic_navigate",
	mcp.WithDescription("Make a news topic the active one and load its subtopics and posts. "+
		"Omit id (or pass an empty string) to return to the top level."),
	mcp.WithString("id", mcp.Description("ID of the topic to open")),
)

var addToolDef = mcp.NewTool("topic_add",
	mcp.WithDescription("Add a news topic under the active topic (at the top level when none is active)."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Topic name, unique among its siblings")),
	mcp.WithString("description", mcp.Description("Optional description")),
)

var updateToolDef = mcp.NewTool("topic_update",
	mcp.WithDescription("Rename a news topic or change its description."),
	mcp.WithString("id", mcp.Required(), mcp.Description("ID of the topic to edit")),
	mcp.WithString("name", mcp.Description("New name")),
	mcp.WithString("description", mcp.Description("New description")),
)

var deleteToolDef = mcp.NewTool("topic_delete",
	mcp.WithDescription("Delete a news topic and all of its subtopics. Deleting the active topic "+
		"or one of its ancestors returns the navigator to the top level."),
	mcp.WithString("id", mcp.Required(), mcp.Description("ID of the topic to delete")),
	mcp.WithDestructiveHintAnnotation(true),
)

var postsListToolDef = mcp.NewTool("posts_list",
	mcp.WithDescription("List the posts of the active news topic. Pass refresh to fetch them again."),
	mcp.WithBoolean("refresh", mcp.Description("Reload the current level and its posts first")),
)

var summaryGenerateToolDef = mcp.NewTool("summary_generate",
	mcp.WithDescription("Summarize the posts currently shown for the active news topic."),
)
